// Package catalog is the source of rule definitions for a batch pass.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Catalog reads and maintains rule definitions in the rule store.
type Catalog struct {
	store domain.RuleStore

	// check runs after structural validation on every Save. The rules
	// package installs its expression compiler here.
	check func(*domain.Rule) error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCheck adds a validation step applied to rules before they are saved.
func WithCheck(fn func(*domain.Rule) error) Option {
	return func(c *Catalog) {
		c.check = fn
	}
}

// New creates a catalog over a rule store.
func New(store domain.RuleStore, opts ...Option) *Catalog {
	c := &Catalog{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadActive returns all active rules ordered by id. An empty catalog is not
// an error. Store failures are reported as ErrCatalogUnavailable.
func (c *Catalog) LoadActive(ctx context.Context) ([]*domain.Rule, error) {
	if err := c.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	rules, err := c.store.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	if rules == nil {
		rules = []*domain.Rule{}
	}
	return rules, nil
}

// Get returns a single rule.
func (c *Catalog) Get(ctx context.Context, ruleID string) (*domain.Rule, error) {
	return c.store.GetRule(ctx, ruleID)
}

// List returns rules ordered by id.
func (c *Catalog) List(ctx context.Context, includeInactive bool) ([]*domain.Rule, error) {
	return c.store.ListRules(ctx, !includeInactive)
}

// Save validates and stores a rule definition.
func (c *Catalog) Save(ctx context.Context, rule *domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if c.check != nil {
		if err := c.check(rule); err != nil {
			return err
		}
	}
	return c.store.SaveRule(ctx, rule)
}

// SetActive activates or deactivates a rule. Alerts already raised by the
// rule are kept.
func (c *Catalog) SetActive(ctx context.Context, ruleID string, active bool) error {
	if err := c.store.SetRuleActive(ctx, ruleID, active); err != nil {
		return err
	}
	slog.Info("rule state changed", "rule_id", ruleID, "active", active)
	return nil
}

// Seed saves every rule, stopping at the first invalid one.
func (c *Catalog) Seed(ctx context.Context, rules []*domain.Rule) error {
	for _, rule := range rules {
		if err := c.Save(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}
	slog.Info("rule catalog seeded", "rules", len(rules))
	return nil
}
