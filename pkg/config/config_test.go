package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("unexpected telemetry default: %+v", cfg.Telemetry)
	}
	if cfg.StepTimeout() != 300*time.Second {
		t.Fatalf("unexpected step timeout: %v", cfg.StepTimeout())
	}
	if cfg.Workflow.Audit.Driver != "memory" {
		t.Fatalf("unexpected audit default: %+v", cfg.Workflow.Audit)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
log:
  level: debug
  format: json
workflow:
  step_timeout_seconds: 30
  audit:
    driver: sqlite
    path: /tmp/audit.db
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("file values not applied: %+v", cfg.Log)
	}
	if cfg.StepTimeout() != 30*time.Second {
		t.Fatalf("unexpected step timeout: %v", cfg.StepTimeout())
	}
	if cfg.Workflow.Audit.Driver != "sqlite" || cfg.Workflow.Audit.Path != "/tmp/audit.db" {
		t.Fatalf("unexpected audit config: %+v", cfg.Workflow.Audit)
	}
	// Untouched sections keep their defaults.
	if cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("default lost: %+v", cfg.Telemetry)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STRATEGOS_LOG_LEVEL", "warn")
	t.Setenv("STRATEGOS_TELEMETRY_EXPORTER", "none")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env value not applied: %+v", cfg.Log)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Fatalf("env value not applied: %+v", cfg.Telemetry)
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	cfg, err := LoadWithCLI([]string{"--set", "log.level=error", "--set=log.format=json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "error" || cfg.Log.Format != "json" {
		t.Fatalf("cli overrides not applied: %+v", cfg.Log)
	}
}

func TestLoadWithCLIRejectsMalformed(t *testing.T) {
	if _, err := LoadWithCLI([]string{"--set", "no-equals"}); err == nil {
		t.Fatalf("expected error for malformed --set")
	}
	if _, err := LoadWithCLI([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, err := LoadWithCLI([]string{"--bogus"}); err == nil {
		t.Fatalf("expected error for unknown argument")
	}
}
