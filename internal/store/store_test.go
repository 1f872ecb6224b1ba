package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// contract runs the same assertions against any Store implementation so
// the memory and sqlite drivers cannot drift apart.
func contract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	next := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	created, err := s.Create(ctx, CreateJob{
		Name:         "weekly-report",
		Description:  "sends the weekly report",
		CronSchedule: "0 9 * * 1",
		Type:         job.TypeReport,
		Data:         map[string]any{"recipients": "team"},
		NextRun:      &next,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create did not assign an id")
	}
	if created.Status != job.StatusActive {
		t.Fatalf("new job status = %s, want active", created.Status)
	}

	got, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Name != "weekly-report" || got.CronSchedule != "0 9 * * 1" || got.Type != job.TypeReport {
		t.Fatalf("FindByID returned wrong job: %+v", got)
	}
	if got.NextRun == nil || !got.NextRun.Equal(next) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, next)
	}
	if got.Data["recipients"] != "team" {
		t.Fatalf("Data round-trip lost payload: %v", got.Data)
	}

	if _, err := s.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID(missing) = %v, want ErrNotFound", err)
	}

	// Active query reflects status changes.
	active, err := s.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("FindActive returned %d jobs, want 1", len(active))
	}
	if err := s.UpdateStatus(ctx, created.ID, job.StatusPaused); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	active, err = s.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("paused job still in FindActive: %v", active)
	}

	// MarkCompleted returns the job to active and records last_run.
	lastRun := time.Date(2025, 5, 1, 10, 0, 3, 0, time.UTC)
	if err := s.MarkCompleted(ctx, created.ID, lastRun); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, err = s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != job.StatusActive {
		t.Fatalf("status after MarkCompleted = %s, want active", got.Status)
	}
	if got.LastRun == nil || !got.LastRun.Equal(lastRun) {
		t.Fatalf("LastRun = %v, want %v", got.LastRun, lastRun)
	}

	// UpdateNextRun is the separate second bookkeeping step.
	newNext := next.Add(7 * 24 * time.Hour)
	if err := s.UpdateNextRun(ctx, created.ID, newNext); err != nil {
		t.Fatalf("UpdateNextRun: %v", err)
	}
	got, _ = s.FindByID(ctx, created.ID)
	if got.NextRun == nil || !got.NextRun.Equal(newNext) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, newNext)
	}

	// MarkFailed leaves next_run untouched.
	if err := s.MarkFailed(ctx, created.ID, lastRun.Add(time.Hour)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = s.FindByID(ctx, created.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status after MarkFailed = %s, want failed", got.Status)
	}
	if got.NextRun == nil || !got.NextRun.Equal(newNext) {
		t.Fatalf("MarkFailed changed NextRun: %v", got.NextRun)
	}

	// Updates on unknown ids surface ErrNotFound.
	if err := s.UpdateNextRun(ctx, "missing", newNext); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateNextRun(missing) = %v, want ErrNotFound", err)
	}
	if err := s.MarkFailed(ctx, "missing", lastRun); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkFailed(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryContract(t *testing.T) {
	t.Parallel()
	contract(t, NewMemory())
}

func TestSQLiteContract(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	contract(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFindAllOrdersByCreation(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Create(ctx, CreateJob{Name: name, CronSchedule: "* * * * *", Type: job.TypeGeneric}); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		time.Sleep(time.Millisecond)
	}
	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 3 || all[0].Name != "a" || all[2].Name != "c" {
		t.Fatalf("unexpected order: %+v", all)
	}
}
