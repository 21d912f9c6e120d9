package domain

import "time"

// RulePerformance is the alert yield of a rule against labelled transactions.
type RulePerformance struct {
	RuleID      string   `json:"ruleId"`
	Name        string   `json:"name"`
	Active      bool     `json:"active"`
	TotalAlerts int      `json:"totalAlerts"`
	CaughtFraud int      `json:"caughtFraud"`
	Precision   *float64 `json:"precision,omitempty"`
}

// HighRiskTransaction is a transaction at or above a risk threshold.
type HighRiskTransaction struct {
	Transaction
	AlertCount int `json:"alertCount"`
}

// TransactionDetail is the review context for one transaction.
type TransactionDetail struct {
	Transaction *Transaction   `json:"transaction"`
	User        *User          `json:"user,omitempty"`
	Alerts      []*Alert       `json:"alerts"`
	UserHistory []*Transaction `json:"userHistory"`
}

// ValueCount is a grouped count used by summaries.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary is the population-wide overview.
type Summary struct {
	TotalTransactions    int          `json:"totalTransactions"`
	FraudTransactions    int          `json:"fraudTransactions"`
	FraudPercentage      float64      `json:"fraudPercentage"`
	HighRiskTransactions int          `json:"highRiskTransactions"`
	HighRiskPercentage   float64      `json:"highRiskPercentage"`
	TotalAlerts          int          `json:"totalAlerts"`
	OpenAlerts           int          `json:"openAlerts"`
	AverageAmount        float64      `json:"averageAmount"`
	TopMerchants         []ValueCount `json:"topMerchants"`
	TopCountries         []ValueCount `json:"topCountries"`
	GeneratedAt          time.Time    `json:"generatedAt"`
}

// UserSummary aggregates a user's activity.
type UserSummary struct {
	User                     *User          `json:"user"`
	TotalTransactions        int            `json:"totalTransactions"`
	FraudTransactions        int            `json:"fraudTransactions"`
	AverageAmount            float64        `json:"averageAmount"`
	MaxAmount                float64        `json:"maxAmount"`
	MinAmount                float64        `json:"minAmount"`
	UniqueCountries          int            `json:"uniqueCountries"`
	UniqueMerchantCategories int            `json:"uniqueMerchantCategories"`
	History                  []*Transaction `json:"history"`
}

// Detection is the confusion matrix of final risk scores against fraud
// labels. A transaction is flagged when its final score is at least
// Threshold; unscored transactions count as not flagged. Rates are nil
// when their denominator is zero.
type Detection struct {
	Threshold      float64 `json:"threshold"`
	TruePositives  int     `json:"truePositives"`
	FalsePositives int     `json:"falsePositives"`
	FalseNegatives int     `json:"falseNegatives"`
	TrueNegatives  int     `json:"trueNegatives"`
	Unlabelled     int     `json:"unlabelled"`

	Precision *float64 `json:"precision,omitempty"`
	Recall    *float64 `json:"recall,omitempty"`
	F1        *float64 `json:"f1,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}
