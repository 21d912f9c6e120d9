package repository

// Schema definitions for the Harrier store.
// Compatible with both SQLite and PostgreSQL.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    account_age_days INTEGER NOT NULL DEFAULT 0,
    country_of_residence TEXT NOT NULL,
    num_payment_methods INTEGER NOT NULL DEFAULT 0,
    account_type TEXT NOT NULL DEFAULT '',
    has_verified_email INTEGER NOT NULL DEFAULT 0,
    has_verified_phone INTEGER NOT NULL DEFAULT 0,
    risk_score DOUBLE PRECISION NOT NULL DEFAULT 0
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    merchant_category TEXT NOT NULL,
    country TEXT NOT NULL,
    device_id TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    is_fraud INTEGER,
    ml_score DOUBLE PRECISION,
    rule_score DOUBLE PRECISION,
    final_risk_score DOUBLE PRECISION,
    reviewed INTEGER NOT NULL DEFAULT 0,
    review_notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_is_fraud ON transactions(is_fraud);
CREATE INDEX IF NOT EXISTS idx_transactions_risk ON transactions(final_risk_score);
`

// schemaRules stores the kind-specific condition as JSON.
const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    kind TEXT NOT NULL,
    condition TEXT NOT NULL,
    weight DOUBLE PRECISION NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(active);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    alert_id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
    rule_id TEXT NOT NULL REFERENCES rules(id),
    batch_id TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    resolution TEXT
);

CREATE INDEX IF NOT EXISTS idx_alerts_tx_rule ON alerts(transaction_id, rule_id);
CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
`

const schemaBatchRuns = `
CREATE TABLE IF NOT EXISTS batch_runs (
    batch_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    summary TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaUsers,
		schemaTransactions,
		schemaRules,
		schemaAlerts,
		schemaBatchRuns,
	}
}
