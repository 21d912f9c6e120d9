package rules

import (
	"context"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// evalWindow runs a window join over every user group, at most workers
// groups at a time. The result is the flagged transactions in group order.
func evalWindow(ctx context.Context, w *domain.WindowJoin, pop *Population, workers int) ([]*domain.Transaction, error) {
	results := make([][]bool, len(pop.groups))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, group := range pop.groups {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int, g []*domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}
			results[idx] = windowHits(w, g)
		}(i, group)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flagged []*domain.Transaction
	for i, group := range pop.groups {
		for j, tx := range group {
			if !results[i][j] {
				continue
			}
			if w.ExcludeReviewed && tx.Reviewed {
				continue
			}
			flagged = append(flagged, tx)
		}
	}
	return flagged, nil
}

// windowHits marks the members of one user's timestamp-sorted transactions
// that satisfy the join. Reviewed transactions are counted like any other.
func windowHits(w *domain.WindowJoin, group []*domain.Transaction) []bool {
	if w.Aggregate == domain.AggregateRare {
		return rareHits(w, group)
	}

	hits := make([]bool, len(group))
	window := w.Window()
	values := make(map[string]int)

	// Two pointers: [lo, hi] is the widest window ending at hi with
	// timestamp[hi] - timestamp[lo] <= window. Any qualifying window ending
	// at hi is contained in it, and both aggregates grow with the window, so
	// marking its members when it qualifies flags exactly the transactions
	// that belong to some qualifying window. marked avoids re-marking the
	// overlap with the previous qualifying window.
	lo, marked := 0, -1
	for hi, tx := range group {
		if w.Aggregate == domain.AggregateDistinct {
			values[fieldValue(tx, w.Field)]++
		}
		for lo < hi && group[hi].Timestamp.Sub(group[lo].Timestamp) > window {
			if w.Aggregate == domain.AggregateDistinct {
				v := fieldValue(group[lo], w.Field)
				if values[v]--; values[v] == 0 {
					delete(values, v)
				}
			}
			lo++
		}

		var size int
		switch w.Aggregate {
		case domain.AggregateCount:
			size = hi - lo + 1
		case domain.AggregateDistinct:
			size = len(values)
		}
		if size >= w.Threshold {
			for i := max(lo, marked+1); i <= hi; i++ {
				hits[i] = true
			}
			marked = hi
		}
	}
	return hits
}

// rareHits flags transactions whose field value occurs at most Threshold
// times across the user's whole history.
func rareHits(w *domain.WindowJoin, group []*domain.Transaction) []bool {
	counts := make(map[string]int)
	for _, tx := range group {
		counts[fieldValue(tx, w.Field)]++
	}

	hits := make([]bool, len(group))
	for i, tx := range group {
		hits[i] = counts[fieldValue(tx, w.Field)] <= w.Threshold
	}
	return hits
}

func fieldValue(tx *domain.Transaction, field string) string {
	switch field {
	case domain.FieldCountry:
		return tx.Country
	case domain.FieldMerchantCategory:
		return tx.MerchantCategory
	case domain.FieldDeviceID:
		return tx.DeviceID
	case domain.FieldIPAddress:
		return tx.IPAddress
	}
	return ""
}
