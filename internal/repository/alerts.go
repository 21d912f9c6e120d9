package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const alertColumns = `a.alert_id, a.transaction_id, a.rule_id, r.name, a.batch_id,
	a.created_at, a.updated_at, a.risk_score, a.status, a.resolution`

// CreateAlert inserts an alert after checking that its transaction and rule
// exist. With dedupe set, an existing alert for the same transaction and
// rule yields ErrDuplicateAlert and nothing is written.
func (r *SQLRepository) CreateAlert(ctx context.Context, alert *domain.Alert, dedupe bool) error {
	if alert.ID == "" || alert.TransactionID == "" || alert.RuleID == "" {
		return fmt.Errorf("%w: alert id, transaction id and rule id are required", domain.ErrInvalidInput)
	}
	if alert.Status == "" {
		alert.Status = domain.AlertOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = utcNow()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var txCount, ruleCount int
		refs := `SELECT
			(SELECT COUNT(*) FROM transactions WHERE transaction_id = ?),
			(SELECT COUNT(*) FROM rules WHERE id = ?)`
		if err := tx.QueryRowContext(ctx, r.rebind(refs), alert.TransactionID, alert.RuleID).Scan(&txCount, &ruleCount); err != nil {
			return err
		}
		if txCount == 0 {
			return fmt.Errorf("%w: transaction %s does not exist", domain.ErrConstraintViolation, alert.TransactionID)
		}
		if ruleCount == 0 {
			return fmt.Errorf("%w: rule %s does not exist", domain.ErrConstraintViolation, alert.RuleID)
		}

		args := []any{
			alert.ID, alert.TransactionID, alert.RuleID, alert.BatchID,
			alert.CreatedAt.UTC(), alert.UpdatedAt.UTC(), alert.RiskScore,
			string(alert.Status), nullString(alert.Resolution),
		}
		if !dedupe {
			_, err := tx.ExecContext(ctx, r.rebind(insertAlert+` VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...)
			return err
		}

		values := `SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?`
		if r.driver == "postgres" {
			// Read committed lets two writers both miss each other's row, so
			// writers of the same pair queue on a lock held until commit.
			lock := `SELECT pg_advisory_xact_lock(hashtext(CAST(? AS TEXT) || '|' || CAST(? AS TEXT)))`
			if _, err := tx.ExecContext(ctx, r.rebind(lock), alert.TransactionID, alert.RuleID); err != nil {
				return err
			}
			// Parameters in a select list are untyped text on postgres.
			values = `SELECT ?, ?, ?, ?, CAST(? AS TIMESTAMP), CAST(? AS TIMESTAMP),
				CAST(? AS DOUBLE PRECISION), ?, ?`
		}

		query := insertAlert + "\n\t" + values + `
			WHERE NOT EXISTS (
				SELECT 1 FROM alerts WHERE transaction_id = ? AND rule_id = ?
			)`
		res, err := tx.ExecContext(ctx, r.rebind(query), append(args, alert.TransactionID, alert.RuleID)...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: transaction %s rule %s", domain.ErrDuplicateAlert, alert.TransactionID, alert.RuleID)
		}
		return nil
	})
}

const insertAlert = `
	INSERT INTO alerts (
		alert_id, transaction_id, rule_id, batch_id,
		created_at, updated_at, risk_score, status, resolution
	)`

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM alerts a JOIN rules r ON r.id = a.rule_id
		WHERE a.alert_id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", alertID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter. Alerts for a single
// transaction are ordered by risk score, otherwise newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RuleID != "" {
		where = append(where, "a.rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.TransactionID != "" {
		where = append(where, "a.transaction_id = ?")
		args = append(args, filter.TransactionID)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts a JOIN rules r ON r.id = a.rule_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.TransactionID != "" {
		query += " ORDER BY a.risk_score DESC, a.created_at, a.alert_id"
	} else {
		query += " ORDER BY a.created_at DESC, a.alert_id"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// UpdateAlertStatus moves an alert from one status to another. The update is
// conditional on the stored status still being from, so concurrent reviewers
// cannot both win.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, alertID string, from, to domain.AlertStatus, resolution *string, at time.Time) error {
	query := `UPDATE alerts SET status = ?, resolution = COALESCE(?, resolution), updated_at = ?
		WHERE alert_id = ? AND status = ?`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		string(to), nullString(resolution), at.UTC(), alertID, string(from),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	current, err := r.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: alert %s is %s, not %s", domain.ErrInvalidTransition, alertID, current.Status, from)
}

func scanAlert(s rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var status string
	var batchID, resolution sql.NullString

	if err := s.Scan(
		&a.ID, &a.TransactionID, &a.RuleID, &a.RuleName, &batchID,
		&a.CreatedAt, &a.UpdatedAt, &a.RiskScore, &status, &resolution,
	); err != nil {
		return nil, err
	}
	a.BatchID = batchID.String
	a.Status = domain.AlertStatus(status)
	a.Resolution = stringPtr(resolution)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
