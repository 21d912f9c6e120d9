// Package alerts creates alerts from rule triggers and manages their review
// lifecycle.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// Generator turns the triggers of one rule into open alerts.
type Generator struct {
	store  domain.AlertStore
	bus    domain.EventBus
	dedupe bool
	now    func() time.Time
}

// NewGenerator creates an alert generator. With dedupe set, a transaction
// gets at most one alert per rule across passes. bus may be nil.
func NewGenerator(store domain.AlertStore, bus domain.EventBus, dedupe bool) *Generator {
	return &Generator{
		store:  store,
		bus:    bus,
		dedupe: dedupe,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Result counts what happened to a set of triggers.
type Result struct {
	Created      int
	Deduplicated int
	Failed       int
}

// Generate creates one alert per trigger with the trigger's weight as its
// risk score. An alert rejected for its content or references is counted
// and logged and does not stop the others. Any other store error, or
// cancellation of ctx, is returned with the counts so far.
func (g *Generator) Generate(ctx context.Context, batchID string, triggers []domain.Trigger) (Result, error) {
	var res Result

	for _, tr := range triggers {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		now := g.now()
		alert := &domain.Alert{
			ID:            uuid.New().String(),
			TransactionID: tr.TransactionID,
			RuleID:        tr.RuleID,
			BatchID:       batchID,
			CreatedAt:     now,
			UpdatedAt:     now,
			RiskScore:     tr.Weight,
			Status:        domain.AlertOpen,
		}

		err := g.store.CreateAlert(ctx, alert, g.dedupe)
		switch {
		case err == nil:
			res.Created++
			metrics.AlertsCreated.Inc()
			g.publish(ctx, alert)
		case errors.Is(err, domain.ErrDuplicateAlert):
			res.Deduplicated++
			metrics.AlertsDeduplicated.Inc()
		case errors.Is(err, domain.ErrConstraintViolation), errors.Is(err, domain.ErrInvalidInput):
			res.Failed++
			metrics.AlertsFailed.Inc()
			slog.Warn("alert creation failed",
				"batch_id", batchID,
				"rule_id", tr.RuleID,
				"transaction_id", tr.TransactionID,
				"error", err,
			)
		default:
			return res, fmt.Errorf("create alert for transaction %s rule %s: %w", tr.TransactionID, tr.RuleID, err)
		}
	}

	return res, nil
}

func (g *Generator) publish(ctx context.Context, alert *domain.Alert) {
	if g.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, g.bus, domain.TopicAlertCreated, alert); err != nil {
		slog.Warn("failed to publish alert", "alert_id", alert.ID, "error", err)
	}
}
