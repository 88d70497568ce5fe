package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoleConfig is the static description of an agent-of-this-role: which model
// it runs on and the instruction text it carries. Loaded once per run and
// read-only thereafter.
type RoleConfig struct {
	Name         string   `yaml:"name" json:"name"`
	Model        string   `yaml:"model" json:"model"`
	Instructions string   `yaml:"instructions" json:"instructions"`
	ToolsDenied  []string `yaml:"tools_denied,omitempty" json:"tools_denied,omitempty"`
}

type roleFile struct {
	Roles []RoleConfig `yaml:"roles" json:"roles"`
}

// ParseRoles loads role configurations from YAML.
func ParseRoles(data []byte) ([]RoleConfig, error) {
	var file roleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}
	seen := make(map[string]bool, len(file.Roles))
	for i, role := range file.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return nil, fmt.Errorf("role %d is missing a name", i)
		}
		if seen[role.Name] {
			return nil, fmt.Errorf("duplicate role %q", role.Name)
		}
		seen[role.Name] = true
	}
	return file.Roles, nil
}

// LoadRoles loads role configurations from a YAML file.
func LoadRoles(path string) ([]RoleConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("roles path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRoles(data)
}
