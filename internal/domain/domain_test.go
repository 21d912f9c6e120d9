package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func predicate(expr string) *Rule {
	return &Rule{
		ID:        "r1",
		Name:      "Rule One",
		Weight:    0.5,
		Kind:      KindRowPredicate,
		Predicate: &RowPredicate{Expression: expr},
	}
}

func window(w WindowJoin) *Rule {
	return &Rule{ID: "w1", Name: "Window", Weight: 0.5, Kind: KindUserWindowJoin, Window: &w}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name  string
		rule  *Rule
		valid bool
	}{
		{"Predicate", predicate("amount > 1000.0"), true},
		{"MissingID", &Rule{Name: "x", Weight: 0.5, Kind: KindRowPredicate, Predicate: &RowPredicate{Expression: "true"}}, false},
		{"MissingName", &Rule{ID: "x", Weight: 0.5, Kind: KindRowPredicate, Predicate: &RowPredicate{Expression: "true"}}, false},
		{"ZeroWeight", func() *Rule { r := predicate("true"); r.Weight = 0; return r }(), false},
		{"WeightAboveOne", func() *Rule { r := predicate("true"); r.Weight = 1.01; return r }(), false},
		{"WeightOfOne", func() *Rule { r := predicate("true"); r.Weight = 1; return r }(), true},
		{"NaNWeight", func() *Rule { r := predicate("true"); r.Weight = math.NaN(); return r }(), false},
		{"EmptyExpression", predicate(""), false},
		{"PredicateWithWindow", func() *Rule {
			r := predicate("true")
			r.Window = &WindowJoin{WindowSecs: 60, Aggregate: AggregateCount, Threshold: 2}
			return r
		}(), false},
		{"UnknownKind", &Rule{ID: "x", Name: "x", Weight: 0.5, Kind: "sql"}, false},
		{"CountWindow", window(WindowJoin{WindowSecs: 3600, Aggregate: AggregateCount, Threshold: 3}), true},
		{"CountZeroWindow", window(WindowJoin{Aggregate: AggregateCount, Threshold: 3}), false},
		{"CountWindowOverflows", window(WindowJoin{WindowSecs: 10_000_000_000, Aggregate: AggregateCount, Threshold: 3}), false},
		{"CountLongestWindow", window(WindowJoin{WindowSecs: math.MaxInt64 / int64(time.Second), Aggregate: AggregateCount, Threshold: 3}), true},
		{"DistinctWindowOverflows", window(WindowJoin{WindowSecs: math.MaxInt64, Aggregate: AggregateDistinct, Field: FieldCountry, Threshold: 2}), false},
		{"CountZeroThreshold", window(WindowJoin{WindowSecs: 60, Aggregate: AggregateCount}), false},
		{"DistinctCountry", window(WindowJoin{WindowSecs: 86400, Aggregate: AggregateDistinct, Field: FieldCountry, Threshold: 2}), true},
		{"DistinctUnknownField", window(WindowJoin{WindowSecs: 86400, Aggregate: AggregateDistinct, Field: "amount", Threshold: 2}), false},
		{"RareIgnoresWindow", window(WindowJoin{Aggregate: AggregateRare, Field: FieldMerchantCategory, Threshold: 2}), true},
		{"RareNegative", window(WindowJoin{Aggregate: AggregateRare, Field: FieldMerchantCategory, Threshold: -1}), false},
		{"UnknownAggregate", window(WindowJoin{WindowSecs: 60, Aggregate: "sum", Threshold: 1}), false},
		{"WindowWithoutCondition", &Rule{ID: "x", Name: "x", Weight: 0.5, Kind: KindUserWindowJoin}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRuleDefinition)
		})
	}
}

func TestWindowDuration(t *testing.T) {
	w := WindowJoin{WindowSecs: 3600}
	assert.Equal(t, time.Hour, w.Window())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AlertStatus
		allowed  bool
	}{
		{AlertOpen, AlertInProgress, true},
		{AlertOpen, AlertClosed, true},
		{AlertInProgress, AlertClosed, true},
		{AlertInProgress, AlertOpen, false},
		{AlertOpen, AlertOpen, false},
		{AlertClosed, AlertOpen, false},
		{AlertClosed, AlertInProgress, false},
		{AlertClosed, AlertClosed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, AlertInProgress.Valid())
	assert.False(t, AlertStatus("escalated").Valid())
}

func TestTransactionValidate(t *testing.T) {
	valid := func() *Transaction {
		return &Transaction{ID: "T1", UserID: "U1", Timestamp: time.Now(), Amount: 10}
	}
	assert.NoError(t, valid().Validate())

	bad := map[string]func(*Transaction){
		"MissingID":       func(tx *Transaction) { tx.ID = "" },
		"MissingUser":     func(tx *Transaction) { tx.UserID = "" },
		"ZeroTimestamp":   func(tx *Transaction) { tx.Timestamp = time.Time{} },
		"NegativeAmount":  func(tx *Transaction) { tx.Amount = -1 },
		"RuleScoreAbove":  func(tx *Transaction) { s := 1.5; tx.RuleScore = &s },
		"MLScoreNegative": func(tx *Transaction) { s := -0.1; tx.MLScore = &s },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			tx := valid()
			mutate(tx)
			assert.ErrorIs(t, tx.Validate(), ErrInvalidInput)
		})
	}
}

func TestRuleErrorUnwraps(t *testing.T) {
	err := &RuleError{RuleID: "high_amount", Err: ErrInvalidRuleDefinition}
	assert.True(t, errors.Is(err, ErrInvalidRuleDefinition))
	assert.Equal(t, "rule high_amount: invalid rule definition", err.Error())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TierCommunity, cfg.Tier)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.True(t, cfg.Engine.AlertDedupe)
	assert.Equal(t, 0.7, cfg.Engine.HighRiskThreshold)

	pro := ProConfig()
	assert.Equal(t, TierPro, pro.Tier)
	assert.Equal(t, "postgres", pro.Repository.Driver)
	assert.Equal(t, "nats", pro.EventBus.Type)
}
