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

const transactionColumns = `transaction_id, user_id, timestamp, amount, merchant_category,
	country, device_id, ip_address, is_fraud, ml_score, rule_score,
	final_risk_score, reviewed, review_notes`

const userColumns = `user_id, account_age_days, country_of_residence, num_payment_methods,
	account_type, has_verified_email, has_verified_phone, risk_score`

const insertUser = `
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		account_age_days = excluded.account_age_days,
		country_of_residence = excluded.country_of_residence,
		num_payment_methods = excluded.num_payment_methods,
		account_type = excluded.account_type,
		has_verified_email = excluded.has_verified_email,
		has_verified_phone = excluded.has_verified_phone,
		risk_score = excluded.risk_score
`

const insertTransaction = `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func userArgs(u *domain.User) []any {
	return []any{
		u.ID, u.AccountAgeDays, u.CountryOfResidence, u.NumPaymentMethods,
		u.AccountType, boolToInt(u.HasVerifiedEmail), boolToInt(u.HasVerifiedPhone),
		u.RiskScore,
	}
}

func transactionArgs(tx *domain.Transaction) []any {
	return []any{
		tx.ID, tx.UserID, tx.Timestamp.UTC(), tx.Amount, tx.MerchantCategory,
		tx.Country, tx.DeviceID, tx.IPAddress, nullBool(tx.IsFraud),
		nullFloat(tx.MLScore), nullFloat(tx.RuleScore), nullFloat(tx.FinalRiskScore),
		boolToInt(tx.Reviewed), nullString(tx.ReviewNotes),
	}
}

func scanUser(s rowScanner) (*domain.User, error) {
	var u domain.User
	var email, phone int
	if err := s.Scan(
		&u.ID, &u.AccountAgeDays, &u.CountryOfResidence, &u.NumPaymentMethods,
		&u.AccountType, &email, &phone, &u.RiskScore,
	); err != nil {
		return nil, err
	}
	u.HasVerifiedEmail = email != 0
	u.HasVerifiedPhone = phone != 0
	return &u, nil
}

func scanTransaction(s rowScanner, extra ...any) (*domain.Transaction, error) {
	var tx domain.Transaction
	var (
		isFraud                   sql.NullInt64
		ml, ruleScore, finalScore sql.NullFloat64
		reviewed                  int
		notes                     sql.NullString
	)
	dest := []any{
		&tx.ID, &tx.UserID, &tx.Timestamp, &tx.Amount, &tx.MerchantCategory,
		&tx.Country, &tx.DeviceID, &tx.IPAddress, &isFraud,
		&ml, &ruleScore, &finalScore, &reviewed, &notes,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	tx.Timestamp = tx.Timestamp.UTC()
	tx.IsFraud = boolPtr(isFraud)
	tx.MLScore = floatPtr(ml)
	tx.RuleScore = floatPtr(ruleScore)
	tx.FinalRiskScore = floatPtr(finalScore)
	tx.Reviewed = reviewed != 0
	tx.ReviewNotes = stringPtr(notes)
	return &tx, nil
}

// SaveUser creates or replaces a user.
func (r *SQLRepository) SaveUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(insertUser), userArgs(user)...)
	return err
}

// SaveUsers creates or replaces users in one database transaction.
func (r *SQLRepository) SaveUsers(ctx context.Context, users []*domain.User) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(insertUser))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range users {
			if u.ID == "" {
				return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
			}
			if _, err := stmt.ExecContext(ctx, userArgs(u)...); err != nil {
				return fmt.Errorf("save user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// GetUser retrieves a user by ID.
func (r *SQLRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`

	u, err := scanUser(r.db.QueryRowContext(ctx, r.rebind(query), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (r *SQLRepository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveTransaction inserts a new transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, r.rebind(insertTransaction), transactionArgs(tx)...)
	return err
}

// SaveTransactions inserts transactions in one database transaction.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}

	return r.withTx(ctx, func(dbtx *sql.Tx) error {
		stmt, err := dbtx.PrepareContext(ctx, r.rebind(insertTransaction))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, tx := range txs {
			if _, err := stmt.ExecContext(ctx, transactionArgs(tx)...); err != nil {
				return fmt.Errorf("save transaction %s: %w", tx.ID, err)
			}
		}
		return nil
	})
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var where []string
	var args []any

	if filter.MinRisk != nil {
		where = append(where, "final_risk_score >= ?")
		args = append(args, *filter.MinRisk)
	}
	if filter.MaxRisk != nil {
		where = append(where, "final_risk_score <= ?")
		args = append(args, *filter.MaxRisk)
	}
	if filter.Reviewed != nil {
		where = append(where, "reviewed = ?")
		args = append(args, boolToInt(*filter.Reviewed))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, transaction_id LIMIT ? OFFSET ?"
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))

	return r.queryTransactions(ctx, query, args...)
}

// ScanPopulation returns every transaction ordered by user and timestamp.
func (r *SQLRepository) ScanPopulation(ctx context.Context) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY user_id, timestamp, transaction_id`
	return r.queryTransactions(ctx, query)
}

// UserHistory returns a user's most recent transactions, newest first.
func (r *SQLRepository) UserHistory(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC, transaction_id
		LIMIT ?`
	return r.queryTransactions(ctx, query, userID, pageLimit(limit))
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// WriteScores applies score updates in one database transaction. A nil score
// is written as NULL.
func (r *SQLRepository) WriteScores(ctx context.Context, updates []domain.ScoreUpdate) error {
	for _, u := range updates {
		if err := domain.ValidateScore(u.RuleScore); err != nil {
			return fmt.Errorf("transaction %s: rule score: %w", u.TransactionID, err)
		}
		if err := domain.ValidateScore(u.FinalRiskScore); err != nil {
			return fmt.Errorf("transaction %s: final score: %w", u.TransactionID, err)
		}
	}

	query := `UPDATE transactions SET rule_score = ?, final_risk_score = ? WHERE transaction_id = ?`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.rebind(query))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, nullFloat(u.RuleScore), nullFloat(u.FinalRiskScore), u.TransactionID); err != nil {
				return fmt.Errorf("write scores for %s: %w", u.TransactionID, err)
			}
		}
		return nil
	})
}

// SetMLScore stores the externally produced model score for a transaction.
func (r *SQLRepository) SetMLScore(ctx context.Context, txID string, score *float64) error {
	if err := domain.ValidateScore(score); err != nil {
		return err
	}
	query := `UPDATE transactions SET ml_score = ? WHERE transaction_id = ?`
	return r.updateOne(ctx, "transaction "+txID, query, nullFloat(score), txID)
}

// ReviewTransaction sets the analyst review flag and notes.
func (r *SQLRepository) ReviewTransaction(ctx context.Context, txID string, reviewed bool, notes *string) error {
	query := `UPDATE transactions SET reviewed = ?, review_notes = ? WHERE transaction_id = ?`
	return r.updateOne(ctx, "transaction "+txID, query, boolToInt(reviewed), nullString(notes), txID)
}

// SetFraudLabel records the ground-truth fraud label.
func (r *SQLRepository) SetFraudLabel(ctx context.Context, txID string, isFraud bool) error {
	query := `UPDATE transactions SET is_fraud = ? WHERE transaction_id = ?`
	return r.updateOne(ctx, "transaction "+txID, query, boolToInt(isFraud), txID)
}

// updateOne executes an update that must hit exactly one row.
func (r *SQLRepository) updateOne(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrRecordNotFound)
	}
	return nil
}

// utcNow stamps rows written without an explicit time.
var utcNow = func() time.Time { return time.Now().UTC() }
