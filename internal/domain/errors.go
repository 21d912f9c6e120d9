package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable means the rule store could not be reached. Retryable.
	ErrCatalogUnavailable = errors.New("rule catalog unavailable")

	// ErrInvalidRuleDefinition means a rule cannot be evaluated.
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")

	// ErrRecordNotFound means the requested transaction, alert, rule or user does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConstraintViolation means an alert referenced a missing transaction or rule.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrInvalidTransition means an alert status change is not allowed.
	ErrInvalidTransition = errors.New("invalid alert status transition")

	// ErrInvalidInput means a request is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateAlert means an alert already exists for the transaction and rule.
	ErrDuplicateAlert = errors.New("duplicate alert")
)

// RuleError ties a failure to the rule that caused it.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
