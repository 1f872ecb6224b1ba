package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"storage": {"driver": "sqlite", "path": "data/jobs.db", "busy_timeout": "5s"},
		"scheduler": {"workers": 8, "discovery_interval": "30s", "failure_policy": "keep-active"},
		"server": {"addr": ":9090"}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.Workers != 8 {
		t.Fatalf("workers = %d, want 8", cfg.Scheduler.Workers)
	}
	if got := cfg.Scheduler.DiscoveryIntervalOrDefault(); got != 30*time.Second {
		t.Fatalf("discovery interval = %v, want 30s", got)
	}
	if cfg.Scheduler.FailurePolicy != "keep-active" {
		t.Fatalf("failure policy = %q", cfg.Scheduler.FailurePolicy)
	}
	if !cfg.ServerEnabled() {
		t.Fatal("server should default to enabled")
	}
}

func TestLoadYAMLParity(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: warn
scheduler:
  timezone: UTC
  shutdown_grace: 2s
server:
  enabled: false
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if got := cfg.Scheduler.ShutdownGraceOrDefault(); got != 2*time.Second {
		t.Fatalf("shutdown grace = %v, want 2s", got)
	}
	if cfg.ServerEnabled() {
		t.Fatal("server.enabled=false ignored")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"schedular": {"workers": 2}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"scheduler": {"discovery_interval": "soon"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestLoadRejectsBadFailurePolicy(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"scheduler": {"failure_policy": "explode"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown failure policy")
	}
}

func TestDefaultsWhenOmitted(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Scheduler.DiscoveryIntervalOrDefault(); got != 10*time.Second {
		t.Fatalf("default discovery interval = %v, want 10s", got)
	}
	if got := cfg.Scheduler.ShutdownGraceOrDefault(); got != time.Second {
		t.Fatalf("default shutdown grace = %v, want 1s", got)
	}
	if got := cfg.Scheduler.RunTimeoutOrDefault(); got != time.Minute {
		t.Fatalf("default run timeout = %v, want 1m", got)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
}
