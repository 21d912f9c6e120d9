package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ruleCondition is the JSON shape of the rules.condition column.
type ruleCondition struct {
	Predicate *domain.RowPredicate `json:"predicate,omitempty"`
	Window    *domain.WindowJoin   `json:"window,omitempty"`
}

const ruleColumns = `id, name, description, kind, condition, weight, active, created_at, updated_at`

// SaveRule creates or updates a rule definition.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	condition, err := json.Marshal(ruleCondition{Predicate: rule.Predicate, Window: rule.Window})
	if err != nil {
		return fmt.Errorf("marshal condition for rule %s: %w", rule.ID, err)
	}

	now := utcNow()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			condition = excluded.condition,
			weight = excluded.weight,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, string(rule.Kind), string(condition),
		rule.Weight, boolToInt(rule.Active), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetRule retrieves a rule by ID.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns rules ordered by ID, optionally only active ones.
func (r *SQLRepository) ListRules(ctx context.Context, activeOnly bool) ([]*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, 1)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SetRuleActive activates or deactivates a rule. Existing alerts are untouched.
func (r *SQLRepository) SetRuleActive(ctx context.Context, ruleID string, active bool) error {
	query := `UPDATE rules SET active = ?, updated_at = ? WHERE id = ?`
	return r.updateOne(ctx, "rule "+ruleID, query, boolToInt(active), utcNow(), ruleID)
}

func scanRule(s rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var kind, condition string
	var description sql.NullString
	var active int

	if err := s.Scan(
		&rule.ID, &rule.Name, &description, &kind, &condition,
		&rule.Weight, &active, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	// An unreadable condition leaves both halves nil so Validate rejects the
	// rule without failing the whole listing.
	var c ruleCondition
	_ = json.Unmarshal([]byte(condition), &c)

	rule.Description = description.String
	rule.Kind = domain.RuleKind(kind)
	rule.Active = active != 0
	rule.Predicate = c.Predicate
	rule.Window = c.Window
	return &rule, nil
}
