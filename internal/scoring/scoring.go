// Package scoring folds rule triggers and model scores into risk scores.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// RuleScore is the sum of the weights of the triggered rules capped at 1.
// No weights means the score is undefined.
func RuleScore(weights ...float64) *float64 {
	if len(weights) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(decimal.NewFromFloat(w))
	}
	return toFloat(decimal.Min(sum, one))
}

// FinalScore fuses a model score and a rule score. Either side may be
// undefined; when both are defined the result is their mean.
func FinalScore(ml, rule *float64) *float64 {
	switch {
	case ml == nil && rule == nil:
		return nil
	case ml == nil:
		return copyScore(rule)
	case rule == nil:
		return copyScore(ml)
	}
	mean := decimal.NewFromFloat(*ml).Add(decimal.NewFromFloat(*rule)).Div(two)
	return toFloat(mean)
}

// Aggregator collects the triggers of a batch pass. Each rule counts once
// per transaction. It is not safe for concurrent use.
type Aggregator struct {
	weights map[string]map[string]decimal.Decimal
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{weights: make(map[string]map[string]decimal.Decimal)}
}

// Add records triggers.
func (a *Aggregator) Add(triggers []domain.Trigger) {
	for _, tr := range triggers {
		byRule, ok := a.weights[tr.TransactionID]
		if !ok {
			byRule = make(map[string]decimal.Decimal)
			a.weights[tr.TransactionID] = byRule
		}
		byRule[tr.RuleID] = decimal.NewFromFloat(tr.Weight)
	}
}

// RuleScore returns the capped rule score of one transaction.
func (a *Aggregator) RuleScore(txID string) *float64 {
	byRule := a.weights[txID]
	if len(byRule) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range byRule {
		sum = sum.Add(w)
	}
	return toFloat(decimal.Min(sum, one))
}

// Updates produces one score update for every transaction, including those
// with no triggers, so a pass overwrites stale scores.
func (a *Aggregator) Updates(txs []*domain.Transaction) []domain.ScoreUpdate {
	updates := make([]domain.ScoreUpdate, len(txs))
	for i, tx := range txs {
		rule := a.RuleScore(tx.ID)
		updates[i] = domain.ScoreUpdate{
			TransactionID:  tx.ID,
			RuleScore:      rule,
			FinalRiskScore: FinalScore(tx.MLScore, rule),
		}
	}
	return updates
}

func toFloat(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}

func copyScore(s *float64) *float64 {
	v := *s
	return &v
}
