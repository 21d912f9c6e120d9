package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func windowRule(id string, w domain.WindowJoin) *domain.Rule {
	return &domain.Rule{
		ID:     id,
		Name:   id,
		Weight: 0.6,
		Active: true,
		Kind:   domain.KindUserWindowJoin,
		Window: &w,
	}
}

func minutes(user string, mins ...int) []*domain.Transaction {
	var txs []*domain.Transaction
	for _, m := range mins {
		txs = append(txs, newTx(user+"-"+time.Duration(m*int(time.Minute)).String(), user, time.Duration(m)*time.Minute))
	}
	return txs
}

func TestCountWindowBoundary(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	txs := minutes("U1", 0, 10, 50, 65)
	pop := NewPopulation(txs, nil)

	t.Run("SixtyMinutes", func(t *testing.T) {
		rule := windowRule("rapid", domain.WindowJoin{WindowSecs: 3600, Aggregate: domain.AggregateCount, Threshold: 3})
		triggers, err := e.Evaluate(ctx, rule, pop)
		require.NoError(t, err)
		assert.Equal(t, []string{txs[0].ID, txs[1].ID, txs[2].ID, txs[3].ID}, triggeredIDs(triggers))
	})

	t.Run("FiftyMinutesInclusive", func(t *testing.T) {
		// 0 and 50 are exactly one window apart and still share a window.
		rule := windowRule("rapid", domain.WindowJoin{WindowSecs: 3000, Aggregate: domain.AggregateCount, Threshold: 3})
		triggers, err := e.Evaluate(ctx, rule, pop)
		require.NoError(t, err)
		assert.Equal(t, []string{txs[0].ID, txs[1].ID, txs[2].ID}, triggeredIDs(triggers))
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		rule := windowRule("rapid", domain.WindowJoin{WindowSecs: 600, Aggregate: domain.AggregateCount, Threshold: 3})
		triggers, err := e.Evaluate(ctx, rule, pop)
		require.NoError(t, err)
		assert.Empty(t, triggers)
	})
}

func TestOverlongWindowRejected(t *testing.T) {
	e := newEngine(t)
	w := domain.WindowJoin{WindowSecs: 10_000_000_000, Aggregate: domain.AggregateCount, Threshold: 3}
	rule := windowRule("forever", w)

	assert.ErrorIs(t, e.ValidateRule(rule), domain.ErrInvalidRuleDefinition)

	txs := minutes("U1", 0, 10, 50)
	_, err := e.Evaluate(context.Background(), rule, NewPopulation(txs, nil))
	var ruleErr *domain.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.ErrorIs(t, err, domain.ErrInvalidRuleDefinition)

	// The scan stays in range even when the window overflows to negative.
	assert.NotPanics(t, func() {
		assert.Equal(t, []bool{false, false, false}, windowHits(&w, txs))
	})
}

func TestWindowIsPerUser(t *testing.T) {
	e := newEngine(t)
	txs := append(minutes("A", 0, 5), minutes("B", 1)...)
	pop := NewPopulation(txs, nil)

	rule := windowRule("rapid", domain.WindowJoin{WindowSecs: 3600, Aggregate: domain.AggregateCount, Threshold: 3})
	triggers, err := e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}

func TestUnsortedInputIsSorted(t *testing.T) {
	e := newEngine(t)
	txs := minutes("U1", 65, 0, 50, 10)
	pop := NewPopulation(txs, nil)

	rule := windowRule("rapid", domain.WindowJoin{WindowSecs: 3000, Aggregate: domain.AggregateCount, Threshold: 3})
	triggers, err := e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	// Output follows timestamp order within the user.
	assert.Equal(t, []string{txs[1].ID, txs[3].ID, txs[2].ID}, triggeredIDs(triggers))
}

func TestDistinctWindow(t *testing.T) {
	e := newEngine(t)

	txs := minutes("U1", 0, 60, 26*60, 27*60)
	txs[1].Country = "FR"
	txs[3].Country = "DE"
	pop := NewPopulation(txs, nil)

	rule := windowRule("countries", domain.WindowJoin{
		WindowSecs: 86400, Aggregate: domain.AggregateDistinct, Field: domain.FieldCountry, Threshold: 2,
	})
	triggers, err := e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	// 0 and 60 differ; 26h and 27h differ; 60 and 26h are 25 hours apart.
	assert.Equal(t, []string{txs[0].ID, txs[1].ID, txs[2].ID, txs[3].ID}, triggeredIDs(triggers))

	txs[3].Country = "US"
	triggers, err = e.Evaluate(context.Background(), rule, NewPopulation(txs, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[1].ID}, triggeredIDs(triggers))
}

func TestRareValues(t *testing.T) {
	e := newEngine(t)

	txs := minutes("U1", 0, 1, 2, 3, 4)
	txs[4].MerchantCategory = "jewelry"
	pop := NewPopulation(txs, nil)

	rule := windowRule("unusual", domain.WindowJoin{
		Aggregate: domain.AggregateRare, Field: domain.FieldMerchantCategory, Threshold: 2,
	})
	triggers, err := e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	assert.Equal(t, []string{txs[4].ID}, triggeredIDs(triggers))
}

func TestReviewedCountsButIsNotFlagged(t *testing.T) {
	e := newEngine(t)

	txs := minutes("U1", 0, 10, 20)
	txs[1].Reviewed = true
	pop := NewPopulation(txs, nil)

	rule := windowRule("rapid", domain.WindowJoin{
		WindowSecs: 3600, Aggregate: domain.AggregateCount, Threshold: 3, ExcludeReviewed: true,
	})
	triggers, err := e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[2].ID}, triggeredIDs(triggers))

	rule.Window.ExcludeReviewed = false
	triggers, err = e.Evaluate(context.Background(), rule, pop)
	require.NoError(t, err)
	assert.Len(t, triggers, 3)
}
