package scheduler

import (
	"errors"
	"time"
)

// FailurePolicy decides the status of a job whose handler failed.
type FailurePolicy string

const (
	// FailureMarkFailed moves the job to failed; it stays unscheduled
	// after the next reconciliation until something reactivates it.
	FailureMarkFailed FailurePolicy = "mark-failed"

	// FailureKeepActive leaves the job active so the next natural
	// trigger retries it.
	FailureKeepActive FailurePolicy = "keep-active"
)

// ParseFailurePolicy maps a config string to a policy, defaulting to
// mark-failed (empty string included).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailureMarkFailed:
		return FailureMarkFailed, nil
	case FailureKeepActive:
		return FailureKeepActive, nil
	default:
		return "", errors.New("unknown failure policy: " + s)
	}
}

// Config controls the scheduling core.
type Config struct {
	Workers           int
	QueueSize         int
	RunTimeout        time.Duration
	DiscoveryInterval time.Duration
	ShutdownGrace     time.Duration
	FailurePolicy     FailurePolicy
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 10 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = time.Second
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureMarkFailed
	}
	return c
}

var (
	// ErrShuttingDown rejects new registrations once shutdown has begun.
	ErrShuttingDown = errors.New("scheduler is shutting down")

	// ErrNotRunning rejects operations before Start or after Shutdown.
	ErrNotRunning = errors.New("scheduler is not running")

	// ErrNotSchedulable rejects registration of a job whose status does
	// not permit a live timer.
	ErrNotSchedulable = errors.New("job status does not permit scheduling")
)

// DiscoveryHealth reports the reconciliation loop's recent activity.
type DiscoveryHealth struct {
	Running    bool       `json:"running"`
	LastPass   *time.Time `json:"lastPass,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	Passes     uint64     `json:"passes"`
	Registered uint64     `json:"registered"`
	Cancelled  uint64     `json:"cancelled"`
}

// Snapshot is the coordinator's point-in-time status.
type Snapshot struct {
	InstanceID   string          `json:"instanceId"`
	Running      bool            `json:"running"`
	ShuttingDown bool            `json:"shuttingDown"`
	TimerCount   int             `json:"timerCount"`
	JobIDs       []string        `json:"jobIds"`
	QueueDepth   int             `json:"queueDepth"`
	InFlight     int             `json:"inFlight"`
	Discovery    DiscoveryHealth `json:"discovery"`
}
