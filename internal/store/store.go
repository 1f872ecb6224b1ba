package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// ErrNotFound is returned when no job exists for the requested id.
var ErrNotFound = errors.New("job not found")

// Config configures the job store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process store (state is lost on restart)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CreateJob is the caller-supplied part of a new job. The store assigns
// id, timestamps, and the initial status.
type CreateJob struct {
	Name         string
	Description  string
	CronSchedule string
	Type         job.Type
	Data         map[string]any
	NextRun      *time.Time
}

// Store is the persistence API consumed by the scheduler core and the
// HTTP layer.
//
// MarkCompleted records a successful run: it sets last_run and moves the
// job back to active, because completing one run of a recurring job does
// not stop its schedule. MarkFailed records last_run and moves the job
// to failed. Both leave next_run untouched; UpdateNextRun is the separate
// second step of post-run bookkeeping.
type Store interface {
	Create(ctx context.Context, in CreateJob) (job.Job, error)
	FindByID(ctx context.Context, id string) (job.Job, error)
	FindAll(ctx context.Context) ([]job.Job, error)
	FindActive(ctx context.Context) ([]job.Job, error)
	MarkCompleted(ctx context.Context, id string, lastRun time.Time) error
	MarkFailed(ctx context.Context, id string, lastRun time.Time) error
	UpdateNextRun(ctx context.Context, id string, next time.Time) error
	UpdateStatus(ctx context.Context, id string, status job.Status) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
