package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.yaml")
	content := `
backend:
  kind: natsobj
  dsn: "nats://localhost:4222/bucket/key"
mode: readonly
writeCapacity:
  initial: 4096
  max: 1048576
readCapacity:
  initial: 4096
  max: 1048576
observability:
  enableTracing: true
  enableMetrics: false
  metricsAddr: ":9091"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var cfg CLIConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backend.Kind != "natsobj" {
		t.Errorf("Backend.Kind = %v, want natsobj", cfg.Backend.Kind)
	}
	if cfg.WriteCapacity.Max != 1048576 {
		t.Errorf("WriteCapacity.Max = %v, want 1048576", cfg.WriteCapacity.Max)
	}
	if !cfg.Observability.EnableTracing {
		t.Errorf("Observability.EnableTracing = false, want true")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.yaml")
	content := "backend:\n  kind: localfile\n  dsn: /tmp/x\nmode: readwrite\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("CVR_MODE", "append")

	var cfg CLIConfig
	if err := LoadWithEnv(path, "CVR", &cfg); err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Mode != "append" {
		t.Errorf("Mode = %v, want append (env override)", cfg.Mode)
	}
	if cfg.Backend.Kind != "localfile" {
		t.Errorf("Backend.Kind = %v, want localfile (unchanged by env)", cfg.Backend.Kind)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend.Kind != "localfile" {
		t.Errorf("default backend kind = %v, want localfile", cfg.Backend.Kind)
	}
	if cfg.WriteCapacity.Initial <= 0 {
		t.Errorf("default write capacity initial must be positive, got %d", cfg.WriteCapacity.Initial)
	}
}
