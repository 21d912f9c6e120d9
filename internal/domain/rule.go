package domain

import (
	"fmt"
	"math"
	"time"
)

// RuleKind selects the evaluation strategy for a rule.
type RuleKind string

const (
	// KindRowPredicate is a condition over one transaction joined with its user.
	KindRowPredicate RuleKind = "row_predicate"

	// KindUserWindowJoin is a condition over a user's transactions within a time window.
	KindUserWindowJoin RuleKind = "user_window_join"
)

// Aggregate is the group condition applied by a window join.
type Aggregate string

const (
	// AggregateCount triggers when a window holds at least Threshold transactions.
	AggregateCount Aggregate = "count"

	// AggregateDistinct triggers when a window holds at least Threshold distinct Field values.
	AggregateDistinct Aggregate = "distinct"

	// AggregateRare triggers when the transaction's Field value occurs at most
	// Threshold times in the user's whole history. The window is ignored.
	AggregateRare Aggregate = "rare"
)

// Rule is a named, weighted fraud detection condition.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Weight      float64  `json:"weight" yaml:"weight"`
	Active      bool     `json:"active" yaml:"active"`
	Kind        RuleKind `json:"kind" yaml:"kind"`

	// Exactly one of Predicate or Window is set, matching Kind.
	Predicate *RowPredicate `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	Window    *WindowJoin   `json:"window,omitempty" yaml:"window,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// RowPredicate holds a CEL boolean expression over transaction and user fields.
type RowPredicate struct {
	Expression string `json:"expression" yaml:"expression"`
}

// WindowJoin describes a per-user sliding window condition.
type WindowJoin struct {
	WindowSecs      int64     `json:"windowSecs" yaml:"window_secs"`
	Aggregate       Aggregate `json:"aggregate" yaml:"aggregate"`
	Field           string    `json:"field,omitempty" yaml:"field,omitempty"`
	Threshold       int       `json:"threshold" yaml:"threshold"`
	ExcludeReviewed bool      `json:"excludeReviewed" yaml:"exclude_reviewed"`
}

// Window returns the window size as a duration.
func (w *WindowJoin) Window() time.Duration {
	return time.Duration(w.WindowSecs) * time.Second
}

// Trigger records one rule firing for one transaction.
type Trigger struct {
	TransactionID string  `json:"transactionId"`
	RuleID        string  `json:"ruleId"`
	Weight        float64 `json:"weight"`
}

// Validate checks the structural shape of a rule. Expression compilation
// is done by the evaluator.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidRuleDefinition)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: rule %s: name is required", ErrInvalidRuleDefinition, r.ID)
	}
	if math.IsNaN(r.Weight) || r.Weight <= 0 || r.Weight > 1 {
		return fmt.Errorf("%w: rule %s: weight must be in (0,1], got %v", ErrInvalidRuleDefinition, r.ID, r.Weight)
	}

	switch r.Kind {
	case KindRowPredicate:
		if r.Predicate == nil || r.Predicate.Expression == "" {
			return fmt.Errorf("%w: rule %s: predicate expression is required", ErrInvalidRuleDefinition, r.ID)
		}
		if r.Window != nil {
			return fmt.Errorf("%w: rule %s: row predicate must not carry a window", ErrInvalidRuleDefinition, r.ID)
		}
	case KindUserWindowJoin:
		if r.Window == nil {
			return fmt.Errorf("%w: rule %s: window condition is required", ErrInvalidRuleDefinition, r.ID)
		}
		if r.Predicate != nil {
			return fmt.Errorf("%w: rule %s: window join must not carry a predicate", ErrInvalidRuleDefinition, r.ID)
		}
		return r.Window.validate(r.ID)
	default:
		return fmt.Errorf("%w: rule %s: unsupported kind %q", ErrInvalidRuleDefinition, r.ID, r.Kind)
	}
	return nil
}

func (w *WindowJoin) validate(ruleID string) error {
	switch w.Aggregate {
	case AggregateCount:
		if err := w.validateSpan(ruleID); err != nil {
			return err
		}
		if w.Threshold < 1 {
			return fmt.Errorf("%w: rule %s: count threshold must be at least 1", ErrInvalidRuleDefinition, ruleID)
		}
	case AggregateDistinct:
		if err := w.validateSpan(ruleID); err != nil {
			return err
		}
		if w.Threshold < 1 {
			return fmt.Errorf("%w: rule %s: distinct threshold must be at least 1", ErrInvalidRuleDefinition, ruleID)
		}
		if !IsWindowField(w.Field) {
			return fmt.Errorf("%w: rule %s: unsupported window field %q", ErrInvalidRuleDefinition, ruleID, w.Field)
		}
	case AggregateRare:
		if w.Threshold < 0 {
			return fmt.Errorf("%w: rule %s: rare threshold must not be negative", ErrInvalidRuleDefinition, ruleID)
		}
		if !IsWindowField(w.Field) {
			return fmt.Errorf("%w: rule %s: unsupported window field %q", ErrInvalidRuleDefinition, ruleID, w.Field)
		}
	default:
		return fmt.Errorf("%w: rule %s: unsupported aggregate %q", ErrInvalidRuleDefinition, ruleID, w.Aggregate)
	}
	return nil
}

// maxWindowSecs is the longest window whose Duration does not overflow.
const maxWindowSecs = math.MaxInt64 / int64(time.Second)

func (w *WindowJoin) validateSpan(ruleID string) error {
	if w.WindowSecs <= 0 {
		return fmt.Errorf("%w: rule %s: window must be positive", ErrInvalidRuleDefinition, ruleID)
	}
	if w.WindowSecs > maxWindowSecs {
		return fmt.Errorf("%w: rule %s: window of %ds is too long", ErrInvalidRuleDefinition, ruleID, w.WindowSecs)
	}
	return nil
}

// Transaction fields a window join may aggregate over.
const (
	FieldCountry          = "country"
	FieldMerchantCategory = "merchant_category"
	FieldDeviceID         = "device_id"
	FieldIPAddress        = "ip_address"
)

// IsWindowField reports whether name is a transaction field usable by a window join.
func IsWindowField(name string) bool {
	switch name {
	case FieldCountry, FieldMerchantCategory, FieldDeviceID, FieldIPAddress:
		return true
	}
	return false
}
