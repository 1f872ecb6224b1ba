package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewAndRun(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: error
  console: true
storage:
  driver: memory
scheduler:
  workers: 1
  discovery_interval: 50ms
server:
  enabled: false
`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.srv != nil {
		t.Fatal("server built despite enabled: false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewBadConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
scheduler:
  failure_policy: nonsense
`)
	if _, err := New(path); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestNewMissingConfig(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
