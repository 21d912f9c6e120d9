package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SaveBatchRun stores a batch pass summary. Counters are kept as JSON.
func (r *SQLRepository) SaveBatchRun(ctx context.Context, run *domain.BatchRun) error {
	if run.ID == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrInvalidInput)
	}

	summary, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal batch run %s: %w", run.ID, err)
	}

	query := `
		INSERT INTO batch_runs (batch_id, started_at, finished_at, status, summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			summary = excluded.summary
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, string(summary),
	)
	return err
}

// GetBatchRun retrieves a batch pass summary by ID.
func (r *SQLRepository) GetBatchRun(ctx context.Context, batchID string) (*domain.BatchRun, error) {
	query := `SELECT summary FROM batch_runs WHERE batch_id = ?`

	var summary string
	err := r.db.QueryRowContext(ctx, r.rebind(query), batchID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch run %s: %w", batchID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}

	var run domain.BatchRun
	if err := json.Unmarshal([]byte(summary), &run); err != nil {
		return nil, fmt.Errorf("unmarshal batch run %s: %w", batchID, err)
	}
	return &run, nil
}

// ListBatchRuns returns the most recent batch passes first.
func (r *SQLRepository) ListBatchRuns(ctx context.Context, limit int) ([]*domain.BatchRun, error) {
	query := `SELECT summary FROM batch_runs ORDER BY started_at DESC, batch_id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), pageLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.BatchRun
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, err
		}
		var run domain.BatchRun
		if err := json.Unmarshal([]byte(summary), &run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
