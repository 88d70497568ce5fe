package playbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads a playbook from JSON and validates it.
func ParseJSON(data []byte) (*Playbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var pb Playbook
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse json playbook: %w", err)
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// ParseYAML loads a playbook from YAML and validates it.
func ParseYAML(data []byte) (*Playbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse yaml playbook: %w", err)
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// Load loads a playbook from a YAML or JSON file.
func Load(path string) (*Playbook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("playbook path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return parseAuto(data)
	}
}

func parseAuto(data []byte) (*Playbook, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if pb, err := ParseJSON(data); err == nil {
			return pb, nil
		}
	}
	if pb, err := ParseYAML(data); err == nil {
		return pb, nil
	}
	if pb, err := ParseJSON(data); err == nil {
		return pb, nil
	}
	return nil, fmt.Errorf("unsupported playbook format")
}

// MarshalYAML serializes a playbook to YAML.
func MarshalYAML(pb *Playbook) ([]byte, error) {
	if pb == nil {
		return nil, fmt.Errorf("playbook is nil")
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(pb)
}
