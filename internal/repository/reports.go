package repository

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// RulePerformance returns alert counts per rule, including rules that never
// fired. Precision is left for the caller to derive.
func (r *SQLRepository) RulePerformance(ctx context.Context) ([]*domain.RulePerformance, error) {
	query := `
		SELECT r.id, r.name, r.active,
			COUNT(a.alert_id),
			COALESCE(SUM(CASE WHEN t.is_fraud = 1 THEN 1 ELSE 0 END), 0)
		FROM rules r
		LEFT JOIN alerts a ON a.rule_id = r.id
		LEFT JOIN transactions t ON t.transaction_id = a.transaction_id
		GROUP BY r.id, r.name, r.active
		ORDER BY r.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perf []*domain.RulePerformance
	for rows.Next() {
		var p domain.RulePerformance
		var active int
		if err := rows.Scan(&p.RuleID, &p.Name, &active, &p.TotalAlerts, &p.CaughtFraud); err != nil {
			return nil, err
		}
		p.Active = active != 0
		perf = append(perf, &p)
	}
	return perf, rows.Err()
}

// HighRiskTransactions returns transactions scored at or above threshold,
// highest first, with their alert counts.
func (r *SQLRepository) HighRiskTransactions(ctx context.Context, threshold float64, limit int) ([]*domain.HighRiskTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `,
			(SELECT COUNT(*) FROM alerts a WHERE a.transaction_id = transactions.transaction_id) AS alert_count
		FROM transactions
		WHERE final_risk_score >= ?
		ORDER BY final_risk_score DESC, alert_count DESC, transaction_id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), threshold, pageLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.HighRiskTransaction
	for rows.Next() {
		var count int
		tx, err := scanTransaction(rows, &count)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.HighRiskTransaction{Transaction: *tx, AlertCount: count})
	}
	return out, rows.Err()
}

// Summary computes population-wide totals and the top merchant categories
// and countries.
func (r *SQLRepository) Summary(ctx context.Context, highRiskThreshold float64, top int) (*domain.Summary, error) {
	s := &domain.Summary{GeneratedAt: utcNow()}

	totals := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_fraud = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN final_risk_score >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(amount), 0)
		FROM transactions
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(totals), highRiskThreshold).Scan(
		&s.TotalTransactions, &s.FraudTransactions, &s.HighRiskTransactions, &s.AverageAmount,
	); err != nil {
		return nil, fmt.Errorf("transaction totals: %w", err)
	}

	alerts := `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM alerts
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(alerts), string(domain.AlertOpen)).Scan(
		&s.TotalAlerts, &s.OpenAlerts,
	); err != nil {
		return nil, fmt.Errorf("alert totals: %w", err)
	}

	if s.TotalTransactions > 0 {
		s.FraudPercentage = 100 * float64(s.FraudTransactions) / float64(s.TotalTransactions)
		s.HighRiskPercentage = 100 * float64(s.HighRiskTransactions) / float64(s.TotalTransactions)
	}

	var err error
	if s.TopMerchants, err = r.topValues(ctx, "merchant_category", top); err != nil {
		return nil, err
	}
	if s.TopCountries, err = r.topValues(ctx, "country", top); err != nil {
		return nil, err
	}
	return s, nil
}

// DetectionCounts splits labelled transactions by whether their final
// score reaches threshold.
func (r *SQLRepository) DetectionCounts(ctx context.Context, threshold float64) (*domain.Detection, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN is_fraud = 1 AND final_risk_score >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_fraud = 0 AND final_risk_score >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_fraud = 1 AND (final_risk_score IS NULL OR final_risk_score < ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_fraud = 0 AND (final_risk_score IS NULL OR final_risk_score < ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_fraud IS NULL THEN 1 ELSE 0 END), 0)
		FROM transactions
	`
	d := &domain.Detection{Threshold: threshold}
	err := r.db.QueryRowContext(ctx, r.rebind(query), threshold, threshold, threshold, threshold).Scan(
		&d.TruePositives, &d.FalsePositives, &d.FalseNegatives, &d.TrueNegatives, &d.Unlabelled,
	)
	if err != nil {
		return nil, fmt.Errorf("detection counts: %w", err)
	}
	return d, nil
}

// topValues groups transactions by a fixed column name.
func (r *SQLRepository) topValues(ctx context.Context, column string, top int) ([]domain.ValueCount, error) {
	if !domain.IsWindowField(column) {
		return nil, fmt.Errorf("%w: cannot group by %q", domain.ErrInvalidInput, column)
	}
	if top <= 0 {
		top = 5
	}

	query := `SELECT ` + column + `, COUNT(*) AS n FROM transactions
		GROUP BY ` + column + `
		ORDER BY n DESC, ` + column + `
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), top)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	out := []domain.ValueCount{}
	for rows.Next() {
		var vc domain.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// UserSummary aggregates one user's transactions and returns their full
// history, newest first.
func (r *SQLRepository) UserSummary(ctx context.Context, userID string) (*domain.UserSummary, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := &domain.UserSummary{User: user}
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_fraud = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(amount), 0),
			COALESCE(MAX(amount), 0),
			COALESCE(MIN(amount), 0),
			COUNT(DISTINCT country),
			COUNT(DISTINCT merchant_category)
		FROM transactions
		WHERE user_id = ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&s.TotalTransactions, &s.FraudTransactions, &s.AverageAmount,
		&s.MaxAmount, &s.MinAmount, &s.UniqueCountries, &s.UniqueMerchantCategories,
	); err != nil {
		return nil, fmt.Errorf("user %s totals: %w", userID, err)
	}

	history := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC, transaction_id`
	if s.History, err = r.queryTransactions(ctx, history, userID); err != nil {
		return nil, err
	}
	return s, nil
}
