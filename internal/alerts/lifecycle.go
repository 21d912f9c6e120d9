package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// Lifecycle moves alerts through open, in_progress and closed.
type Lifecycle struct {
	store domain.AlertStore
	bus   domain.EventBus
	now   func() time.Time
}

// NewLifecycle creates a lifecycle manager. bus may be nil.
func NewLifecycle(store domain.AlertStore, bus domain.EventBus) *Lifecycle {
	return &Lifecycle{
		store: store,
		bus:   bus,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetStatus moves an alert to a new status and returns the updated alert.
// resolution is recorded only when closing.
func (l *Lifecycle) SetStatus(ctx context.Context, alertID string, to domain.AlertStatus, resolution *string) (*domain.Alert, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", domain.ErrInvalidInput, to)
	}

	current, err := l.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: alert %s: %s to %s", domain.ErrInvalidTransition, alertID, current.Status, to)
	}
	if to != domain.AlertClosed {
		resolution = nil
	}

	at := l.now()
	if err := l.store.UpdateAlertStatus(ctx, alertID, current.Status, to, resolution, at); err != nil {
		return nil, err
	}
	metrics.AlertTransitions.WithLabelValues(string(to)).Inc()
	slog.Info("alert status changed", "alert_id", alertID, "from", current.Status, "to", to)

	l.publish(ctx, domain.AlertStatusChange{AlertID: alertID, From: current.Status, To: to, At: at})

	return l.store.GetAlert(ctx, alertID)
}

func (l *Lifecycle) publish(ctx context.Context, change domain.AlertStatusChange) {
	if l.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, l.bus, domain.TopicAlertStatusChanged, change); err != nil {
		slog.Warn("failed to publish alert status change", "alert_id", change.AlertID, "error", err)
	}
}
