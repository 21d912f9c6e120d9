// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// TransactionStore is read/write access to transactions and users.
type TransactionStore interface {
	SaveUser(ctx context.Context, user *User) error
	SaveUsers(ctx context.Context, users []*User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	SaveTransaction(ctx context.Context, tx *Transaction) error
	// SaveTransactions inserts a set of transactions in one database transaction.
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)

	// ScanPopulation returns every transaction ordered by user and timestamp.
	ScanPopulation(ctx context.Context) ([]*Transaction, error)

	// UserHistory returns a user's most recent transactions, newest first.
	UserHistory(ctx context.Context, userID string, limit int) ([]*Transaction, error)

	// WriteScores applies all score updates atomically.
	WriteScores(ctx context.Context, updates []ScoreUpdate) error
	SetMLScore(ctx context.Context, txID string, score *float64) error
	ReviewTransaction(ctx context.Context, txID string, reviewed bool, notes *string) error
	SetFraudLabel(ctx context.Context, txID string, isFraud bool) error
}

// RuleStore is read/write access to rule definitions.
type RuleStore interface {
	SaveRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, ruleID string) (*Rule, error)
	// ListRules returns rules ordered by id.
	ListRules(ctx context.Context, activeOnly bool) ([]*Rule, error)
	SetRuleActive(ctx context.Context, ruleID string, active bool) error
	Ping(ctx context.Context) error
}

// AlertStore is read/write access to alerts.
type AlertStore interface {
	// CreateAlert inserts an alert. With dedupe set it returns ErrDuplicateAlert
	// if one already exists for the same transaction and rule.
	CreateAlert(ctx context.Context, alert *Alert, dedupe bool) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
	// UpdateAlertStatus moves an alert from one status to another if it is
	// still in the from status.
	UpdateAlertStatus(ctx context.Context, alertID string, from, to AlertStatus, resolution *string, at time.Time) error
}

// ReportStore runs read-only aggregations.
type ReportStore interface {
	RulePerformance(ctx context.Context) ([]*RulePerformance, error)
	HighRiskTransactions(ctx context.Context, threshold float64, limit int) ([]*HighRiskTransaction, error)
	Summary(ctx context.Context, highRiskThreshold float64, top int) (*Summary, error)
	UserSummary(ctx context.Context, userID string) (*UserSummary, error)
	DetectionCounts(ctx context.Context, threshold float64) (*Detection, error)
}

// BatchStore persists batch pass summaries.
type BatchStore interface {
	SaveBatchRun(ctx context.Context, run *BatchRun) error
	GetBatchRun(ctx context.Context, batchID string) (*BatchRun, error)
	ListBatchRuns(ctx context.Context, limit int) ([]*BatchRun, error)
}

// Repository is the full persistence surface.
type Repository interface {
	TransactionStore
	RuleStore
	AlertStore
	ReportStore
	BatchStore

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgresPort"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" mapstructure:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connMaxLifetime"`
}
