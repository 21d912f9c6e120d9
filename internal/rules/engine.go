// Package rules evaluates rule definitions against a transaction population.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

var tracer = otel.Tracer("harrier-rules")

// Engine evaluates one rule at a time over a whole population. Row
// predicates are CEL expressions; window joins run a per-user sliding
// window. Evaluation never writes to the store.
type Engine struct {
	env         *cel.Env
	workers     int
	ruleTimeout time.Duration
}

// NewEngine creates a rule engine. workers bounds the goroutines used for a
// single rule; ruleTimeout bounds each rule's evaluation, zero meaning none.
func NewEngine(workers int, ruleTimeout time.Duration) (*Engine, error) {
	if workers <= 0 {
		workers = 8
	}

	env, err := newPredicateEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:         env,
		workers:     workers,
		ruleTimeout: ruleTimeout,
	}, nil
}

// ValidateRule checks that a rule is well formed and, for row predicates,
// that its expression compiles to a bool.
func (e *Engine) ValidateRule(rule *domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Kind == domain.KindRowPredicate {
		if _, err := compilePredicate(e.env, rule); err != nil {
			return &domain.RuleError{RuleID: rule.ID, Err: err}
		}
	}
	return nil
}

// Evaluate returns the transactions that trigger rule, in population order
// for row predicates and user then timestamp order for window joins. A
// rule that cannot be evaluated yields a *domain.RuleError.
func (e *Engine) Evaluate(ctx context.Context, rule *domain.Rule, pop *Population) ([]domain.Trigger, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "rules.evaluate",
		trace.WithAttributes(
			attribute.String("rule.id", rule.ID),
			attribute.String("rule.kind", string(rule.Kind)),
			attribute.Int("population.size", pop.Size()),
		),
	)
	defer span.End()

	if e.ruleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ruleTimeout)
		defer cancel()
	}

	flagged, err := e.evaluate(ctx, rule, pop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.RuleError{RuleID: rule.ID, Err: err}
	}

	triggers := make([]domain.Trigger, len(flagged))
	for i, tx := range flagged {
		triggers[i] = domain.Trigger{
			TransactionID: tx.ID,
			RuleID:        rule.ID,
			Weight:        rule.Weight,
		}
	}

	span.SetAttributes(attribute.Int("rule.triggers", len(triggers)))
	metrics.RuleEvaluationDuration.WithLabelValues(rule.ID).Observe(float64(time.Since(start).Milliseconds()))
	metrics.RuleTriggers.WithLabelValues(rule.ID).Add(float64(len(triggers)))

	return triggers, nil
}

func (e *Engine) evaluate(ctx context.Context, rule *domain.Rule, pop *Population) ([]*domain.Transaction, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	switch rule.Kind {
	case domain.KindRowPredicate:
		program, err := compilePredicate(e.env, rule)
		if err != nil {
			return nil, err
		}
		hits, err := evalPredicate(ctx, program, pop, e.workers)
		if err != nil {
			return nil, err
		}
		var flagged []*domain.Transaction
		for i, hit := range hits {
			if hit {
				flagged = append(flagged, pop.Transactions[i])
			}
		}
		return flagged, nil

	case domain.KindUserWindowJoin:
		return evalWindow(ctx, rule.Window, pop, e.workers)
	}

	return nil, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidRuleDefinition, rule.Kind)
}
