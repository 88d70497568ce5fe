package capability

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DependencyRule declares that granting Primary also requires Requires.
// Rules are unordered; multiple rules may share a primary.
type DependencyRule struct {
	Primary  string `yaml:"primary" json:"primary"`
	Requires string `yaml:"requires" json:"requires"`
}

type ruleFile struct {
	Rules []DependencyRule `yaml:"rules" json:"rules"`
}

// ParseRules loads dependency rules from YAML.
func ParseRules(data []byte) ([]DependencyRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dependency rules: %w", err)
	}
	for i, rule := range file.Rules {
		if strings.TrimSpace(rule.Primary) == "" || strings.TrimSpace(rule.Requires) == "" {
			return nil, fmt.Errorf("dependency rule %d must set primary and requires", i)
		}
	}
	return file.Rules, nil
}

// LoadRules loads dependency rules from a YAML file.
func LoadRules(path string) ([]DependencyRule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rules path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}
