package rules

import (
	"slices"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Population is the transaction set a batch pass evaluates, with the
// per-user grouping window joins need. Build it once per pass and share it
// across rules; it is read-only after construction.
type Population struct {
	Transactions []*domain.Transaction
	Users        map[string]*domain.User

	// groups holds each user's transactions sorted by timestamp, ordered by
	// user id.
	groups [][]*domain.Transaction
}

// NewPopulation groups transactions by user and sorts each group by
// timestamp. Ties keep their input order.
func NewPopulation(txs []*domain.Transaction, users []*domain.User) *Population {
	p := &Population{
		Transactions: txs,
		Users:        make(map[string]*domain.User, len(users)),
	}
	for _, u := range users {
		p.Users[u.ID] = u
	}

	byUser := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		byUser[tx.UserID] = append(byUser[tx.UserID], tx)
	}

	ids := make([]string, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p.groups = make([][]*domain.Transaction, 0, len(ids))
	for _, id := range ids {
		group := byUser[id]
		slices.SortStableFunc(group, func(a, b *domain.Transaction) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		p.groups = append(p.groups, group)
	}
	return p
}

// Size returns the number of transactions.
func (p *Population) Size() int {
	return len(p.Transactions)
}
