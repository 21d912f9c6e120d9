// Package reporting answers read-only questions about rules, alerts and
// scored transactions. It never writes to the store.
package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Store is the read surface reporting needs.
type Store interface {
	domain.ReportStore
	GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UserHistory(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error)
}

// Service runs reporting queries.
type Service struct {
	store        Store
	historyLimit int
}

// NewService creates a reporting service. historyLimit is the number of
// user transactions included in a transaction detail.
func NewService(store Store, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{store: store, historyLimit: historyLimit}
}

// RulePerformance returns per-rule alert yield. Precision is the share of a
// rule's alerts whose transaction is labelled fraud, and is nil for rules
// without alerts.
func (s *Service) RulePerformance(ctx context.Context) ([]*domain.RulePerformance, error) {
	perf, err := s.store.RulePerformance(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule performance: %w", err)
	}
	for _, p := range perf {
		p.Precision = Precision(p.CaughtFraud, p.TotalAlerts)
	}
	return perf, nil
}

// Precision returns caught/total, or nil when total is zero.
func Precision(caught, total int) *float64 {
	if total <= 0 {
		return nil
	}
	v, _ := decimal.NewFromInt(int64(caught)).
		DivRound(decimal.NewFromInt(int64(total)), 6).
		Float64()
	return &v
}

// Detection measures how well final risk scores at threshold separate
// labelled fraud from legitimate transactions.
func (s *Service) Detection(ctx context.Context, threshold float64) (*domain.Detection, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0,1], got %v", domain.ErrInvalidInput, threshold)
	}
	d, err := s.store.DetectionCounts(ctx, threshold)
	if err != nil {
		return nil, err
	}

	tp, fp, fn, tn := d.TruePositives, d.FalsePositives, d.FalseNegatives, d.TrueNegatives
	d.Precision = Precision(tp, tp+fp)
	d.Recall = Precision(tp, tp+fn)
	d.F1 = Precision(2*tp, 2*tp+fp+fn)
	d.Accuracy = Precision(tp+tn, tp+fp+fn+tn)
	return d, nil
}

// HighRisk returns transactions with a final score of at least threshold.
func (s *Service) HighRisk(ctx context.Context, threshold float64, limit int) ([]*domain.HighRiskTransaction, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0,1], got %v", domain.ErrInvalidInput, threshold)
	}
	return s.store.HighRiskTransactions(ctx, threshold, limit)
}

// TransactionDetail assembles a transaction with its user, its alerts by
// descending risk and the user's most recent transactions.
func (s *Service) TransactionDetail(ctx context.Context, txID string) (*domain.TransactionDetail, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	detail := &domain.TransactionDetail{Transaction: tx}

	user, err := s.store.GetUser(ctx, tx.UserID)
	switch {
	case err == nil:
		detail.User = user
	case !errors.Is(err, domain.ErrRecordNotFound):
		return nil, fmt.Errorf("user %s: %w", tx.UserID, err)
	}

	alerts, err := s.store.ListAlerts(ctx, domain.AlertFilter{TransactionID: txID})
	if err != nil {
		return nil, fmt.Errorf("alerts for %s: %w", txID, err)
	}
	detail.Alerts = orEmpty(alerts)

	history, err := s.store.UserHistory(ctx, tx.UserID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", tx.UserID, err)
	}
	detail.UserHistory = orEmpty(history)

	return detail, nil
}

// Transactions lists transactions matching filter.
func (s *Service) Transactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	if err := domain.ValidateScore(filter.MinRisk); err != nil {
		return nil, err
	}
	if err := domain.ValidateScore(filter.MaxRisk); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, filter)
	return orEmpty(txs), err
}

// Alerts lists alerts matching filter.
func (s *Service) Alerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", domain.ErrInvalidInput, filter.Status)
	}
	alerts, err := s.store.ListAlerts(ctx, filter)
	return orEmpty(alerts), err
}

// Summary returns population-wide totals.
func (s *Service) Summary(ctx context.Context, highRiskThreshold float64, top int) (*domain.Summary, error) {
	return s.store.Summary(ctx, highRiskThreshold, top)
}

// UserSummary returns one user's totals and history.
func (s *Service) UserSummary(ctx context.Context, userID string) (*domain.UserSummary, error) {
	sum, err := s.store.UserSummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum.History = orEmpty(sum.History)
	return sum, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
