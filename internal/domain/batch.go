package domain

import "time"

// BatchRun summarizes one batch pass over the transaction population.
type BatchRun struct {
	ID         string    `json:"batchId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`

	TransactionsEvaluated int `json:"transactionsEvaluated"`
	RulesEvaluated        int `json:"rulesEvaluated"`
	RulesSkipped          int `json:"rulesSkipped"`
	TriggersFound         int `json:"triggersFound"`
	AlertsCreated         int `json:"alertsCreated"`
	AlertsDeduplicated    int `json:"alertsDeduplicated"`
	AlertsFailed          int `json:"alertsFailed"`
	ScoresWritten         int `json:"scoresWritten"`
	ModelScoresFetched    int `json:"modelScoresFetched"`

	SkippedRules []RuleFailure `json:"skippedRules,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// RuleFailure names a rule that was skipped during a pass.
type RuleFailure struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}

// Batch run statuses.
const (
	BatchCompleted = "completed"
	BatchCancelled = "cancelled"
	BatchFailed    = "failed"
)
