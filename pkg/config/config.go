package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type WorkflowConfig struct {
	// StepTimeoutSeconds bounds every agent call a step makes.
	StepTimeoutSeconds int         `koanf:"step_timeout_seconds"`
	Audit              AuditConfig `koanf:"audit"`
}

type AuditConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, none
	Path   string `koanf:"path"`
}

// StepTimeout returns the configured per-step timeout.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Workflow.StepTimeoutSeconds) * time.Second
}

// Load reads configuration from an optional YAML file and the environment
// (STRATEGOS_LOG_LEVEL -> log.level). Keys containing underscores, like
// workflow.step_timeout_seconds, are reachable via file or --set only.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithCLI loads configuration honoring repeated --config <path> and
// --set key=value arguments, applied in order after file and env sources.
func LoadWithCLI(args []string) (*Config, error) {
	path := ""
	var sets []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --config")
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		case arg == "--set":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --set")
			}
			sets = append(sets, args[i+1])
			i++
		case strings.HasPrefix(arg, "--set="):
			sets = append(sets, strings.TrimPrefix(arg, "--set="))
		default:
			return nil, fmt.Errorf("unknown config argument %q", arg)
		}
	}
	return load(path, sets)
}

func load(path string, sets []string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")
	k.Set("workflow.step_timeout_seconds", 300)
	k.Set("workflow.audit.driver", "memory")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (STRATEGOS_LOG_LEVEL -> log.level)
	if err := k.Load(env.Provider("STRATEGOS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "STRATEGOS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// 3. Apply CLI overrides
	for _, set := range sets {
		key, value, found := strings.Cut(set, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", set)
		}
		k.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
