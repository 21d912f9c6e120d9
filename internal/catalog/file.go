package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/harrier/internal/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

// ruleFile is the on-disk layout of a rule definition file.
type ruleFile struct {
	Rules []*domain.Rule `yaml:"rules"`
}

// Defaults returns the built-in rule set.
func Defaults() ([]*domain.Rule, error) {
	return parse(defaultRules, "default rules")
}

// LoadFile reads rule definitions from a YAML file.
func LoadFile(path string) ([]*domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, source string) ([]*domain.Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", source, err)
	}

	seen := make(map[string]bool, len(f.Rules))
	for _, rule := range f.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rules %s: %w", source, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: rules %s: duplicate rule id %s", domain.ErrInvalidRuleDefinition, source, rule.ID)
		}
		seen[rule.ID] = true
	}
	return f.Rules, nil
}
