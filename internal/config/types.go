package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full daemon configuration, loaded from JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Server    ServerConfig    `json:"server"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the scheduling core.
//
// Defaults (when fields are omitted/zero):
//   - timezone: UTC
//   - workers: 4
//   - queue_size: 256
//   - run_timeout: "1m"
//   - discovery_interval: "10s"
//   - shutdown_grace: "1s"
//   - failure_policy: "mark-failed"
type SchedulerConfig struct {
	Timezone  string `json:"timezone,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`

	// RunTimeout bounds a single job execution. "0s" disables the bound.
	RunTimeout string `json:"run_timeout,omitempty"`

	// DiscoveryInterval is how often the store and the live timer set are
	// reconciled.
	DiscoveryInterval string `json:"discovery_interval,omitempty"`

	// ShutdownGrace is how long Shutdown waits for in-flight runs.
	ShutdownGrace string `json:"shutdown_grace,omitempty"`

	// FailurePolicy decides what happens to a job whose handler fails:
	// "mark-failed" (stays failed until reactivated) or "keep-active"
	// (retried on its next natural trigger).
	FailurePolicy string `json:"failure_policy,omitempty"`
}

type ServerConfig struct {
	// Enabled is a pointer so "omitted" (default true) is distinguishable
	// from an explicit false.
	Enabled   *bool            `json:"enabled,omitempty"`
	Addr      string           `json:"addr,omitempty"`
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty"`
}

type RateLimitConfig struct {
	RPS   int `json:"rps,omitempty"`
	Burst int `json:"burst,omitempty"`
}

type NotifierConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// ServerEnabled resolves the enabled pointer (default true).
func (c *Config) ServerEnabled() bool {
	if c.Server.Enabled == nil {
		return true
	}
	return *c.Server.Enabled
}

// Validate checks cross-field constraints that the strict decoder cannot.
func (c *Config) Validate() error {
	if w := c.Scheduler.Workers; w < 0 {
		return fmt.Errorf("scheduler.workers: must be >= 0, got %d", w)
	}
	if q := c.Scheduler.QueueSize; q < 0 {
		return fmt.Errorf("scheduler.queue_size: must be >= 0, got %d", q)
	}
	switch strings.TrimSpace(c.Scheduler.FailurePolicy) {
	case "", "mark-failed", "keep-active":
	default:
		return fmt.Errorf("scheduler.failure_policy: %q (use \"mark-failed\" or \"keep-active\")", c.Scheduler.FailurePolicy)
	}
	for _, d := range []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.run_timeout", c.Scheduler.RunTimeout},
		{"scheduler.discovery_interval", c.Scheduler.DiscoveryInterval},
		{"scheduler.shutdown_grace", c.Scheduler.ShutdownGrace},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if c.Notifier != nil && c.Notifier.Telegram.Enabled && strings.TrimSpace(c.Notifier.Telegram.Token) == "" {
		return fmt.Errorf("notifier.telegram: enabled without a token")
	}
	return nil
}

// DiscoveryIntervalOrDefault returns the parsed interval with its default.
func (s SchedulerConfig) DiscoveryIntervalOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.discovery_interval", s.DiscoveryInterval, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ShutdownGraceOrDefault returns the parsed grace period with its default.
func (s SchedulerConfig) ShutdownGraceOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.shutdown_grace", s.ShutdownGrace, time.Second)
	if err != nil {
		return time.Second
	}
	return d
}

// RunTimeoutOrDefault returns the parsed per-run timeout with its default.
func (s SchedulerConfig) RunTimeoutOrDefault() time.Duration {
	d, err := ParseDurationField("scheduler.run_timeout", s.RunTimeout)
	if err != nil {
		return time.Minute
	}
	if d == 0 && strings.TrimSpace(s.RunTimeout) == "" {
		return time.Minute
	}
	return d
}
