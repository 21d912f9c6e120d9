package domain

import (
	"fmt"
	"time"
)

// Transaction is a payment attributed to a user. Business fields are
// immutable once created; score and review fields are owned by the engine.
type Transaction struct {
	ID               string    `json:"transactionId"`
	UserID           string    `json:"userId"`
	Timestamp        time.Time `json:"timestamp"`
	Amount           float64   `json:"amount"`
	MerchantCategory string    `json:"merchantCategory"`
	Country          string    `json:"country"`
	DeviceID         string    `json:"deviceId"`
	IPAddress        string    `json:"ipAddress"`

	// IsFraud is the ground-truth label; nil for unlabelled live traffic.
	IsFraud *bool `json:"isFraud,omitempty"`

	// Derived scores in [0,1]; nil means not computed.
	RuleScore      *float64 `json:"ruleScore,omitempty"`
	MLScore        *float64 `json:"mlScore,omitempty"`
	FinalRiskScore *float64 `json:"finalRiskScore,omitempty"`

	Reviewed    bool    `json:"reviewed"`
	ReviewNotes *string `json:"reviewNotes,omitempty"`
}

// Validate checks the business fields of a new transaction.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: transaction %s: user id is required", ErrInvalidInput, t.ID)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: transaction %s: timestamp is required", ErrInvalidInput, t.ID)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: transaction %s: amount must not be negative", ErrInvalidInput, t.ID)
	}
	for name, s := range map[string]*float64{"rule": t.RuleScore, "ml": t.MLScore, "final": t.FinalRiskScore} {
		if err := ValidateScore(s); err != nil {
			return fmt.Errorf("transaction %s: %s score: %w", t.ID, name, err)
		}
	}
	return nil
}

// ValidateScore accepts nil or a value in [0,1].
func ValidateScore(s *float64) error {
	if s == nil {
		return nil
	}
	if *s < 0 || *s > 1 {
		return fmt.Errorf("%w: score must be in [0,1], got %v", ErrInvalidInput, *s)
	}
	return nil
}

// User is reference data about the owner of transactions.
type User struct {
	ID                 string  `json:"userId"`
	AccountAgeDays     int     `json:"accountAgeDays"`
	CountryOfResidence string  `json:"countryOfResidence"`
	NumPaymentMethods  int     `json:"numPaymentMethods"`
	AccountType        string  `json:"accountType"`
	HasVerifiedEmail   bool    `json:"hasVerifiedEmail"`
	HasVerifiedPhone   bool    `json:"hasVerifiedPhone"`
	RiskScore          float64 `json:"riskScore"`
}

// ScoreUpdate carries the derived scores written for one transaction in a batch pass.
type ScoreUpdate struct {
	TransactionID  string
	RuleScore      *float64
	FinalRiskScore *float64
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	MinRisk  *float64
	MaxRisk  *float64
	Reviewed *bool
	UserID   string
	Limit    int
	Offset   int
}
