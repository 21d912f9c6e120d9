package domain

import "time"

// AlertStatus is the review state of an alert.
type AlertStatus string

const (
	AlertOpen       AlertStatus = "open"
	AlertInProgress AlertStatus = "in_progress"
	AlertClosed     AlertStatus = "closed"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertOpen, AlertInProgress, AlertClosed:
		return true
	}
	return false
}

// CanTransition reports whether an alert may move from one status to another.
// Closed is terminal.
func CanTransition(from, to AlertStatus) bool {
	switch from {
	case AlertOpen:
		return to == AlertInProgress || to == AlertClosed
	case AlertInProgress:
		return to == AlertClosed
	}
	return false
}

// Alert records one rule triggering for one transaction.
type Alert struct {
	ID            string      `json:"alertId"`
	TransactionID string      `json:"transactionId"`
	RuleID        string      `json:"ruleId"`
	RuleName      string      `json:"ruleName,omitempty"`
	BatchID       string      `json:"batchId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	RiskScore     float64     `json:"riskScore"`
	Status        AlertStatus `json:"status"`
	Resolution    *string     `json:"resolution,omitempty"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Status        AlertStatus
	RuleID        string
	TransactionID string
	Limit         int
	Offset        int
}
