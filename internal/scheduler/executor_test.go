package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/notify"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

func newTestExecutor(t *testing.T, policy FailurePolicy, now time.Time) (*Executor, *store.Memory, *Handlers) {
	t.Helper()
	st := store.NewMemory()
	eval := testEvaluator(t)
	handlers := DefaultHandlers(notify.Nop{}, logx.Nop())
	exec := NewExecutor(st, eval, handlers, policy, time.Minute, logx.Nop())
	exec.now = func() time.Time { return now }
	return exec, st, handlers
}

func createJob(t *testing.T, st *store.Memory, typ job.Type, expr string) job.Job {
	t.Helper()
	j, err := st.Create(context.Background(), store.CreateJob{
		Name:         "test-job",
		CronSchedule: expr,
		Type:         typ,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return j
}

func TestExecuteSuccessBookkeeping(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, _ := newTestExecutor(t, FailureMarkFailed, now)
	j := createJob(t, st, job.TypeEmail, "*/1 * * * *")
	// email handler needs a recipient to succeed
	j.Data = map[string]any{"to": "ops@example.com"}

	exec.Execute(context.Background(), j)

	got, err := st.FindByID(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != job.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.LastRun == nil || !got.LastRun.Equal(now) {
		t.Fatalf("LastRun = %v, want %v", got.LastRun, now)
	}
	wantNext := time.Date(2025, 3, 10, 12, 1, 0, 0, time.UTC)
	if got.NextRun == nil || !got.NextRun.Equal(wantNext) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, wantNext)
	}
}

func TestExecuteFailureMarksFailed(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, handlers := newTestExecutor(t, FailureMarkFailed, now)
	j := createJob(t, st, job.TypeReport, "*/5 * * * *")

	prevNext := time.Date(2025, 3, 10, 12, 5, 0, 0, time.UTC)
	if err := st.UpdateNextRun(context.Background(), j.ID, prevNext); err != nil {
		t.Fatalf("UpdateNextRun: %v", err)
	}
	handlers.Set(job.TypeReport, func(ctx context.Context, j job.Job) error {
		return errors.New("report backend down")
	})

	exec.Execute(context.Background(), j)

	got, _ := st.FindByID(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.LastRun == nil || !got.LastRun.Equal(now) {
		t.Fatalf("LastRun = %v, want %v", got.LastRun, now)
	}
	if got.NextRun == nil || !got.NextRun.Equal(prevNext) {
		t.Fatalf("NextRun changed on failure: %v, want %v", got.NextRun, prevNext)
	}
}

func TestExecuteFailureKeepActivePolicy(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, handlers := newTestExecutor(t, FailureKeepActive, now)
	j := createJob(t, st, job.TypeReport, "*/5 * * * *")
	handlers.Set(job.TypeReport, func(ctx context.Context, j job.Job) error {
		return errors.New("transient")
	})

	exec.Execute(context.Background(), j)

	got, _ := st.FindByID(context.Background(), j.ID)
	if got.Status != job.StatusActive {
		t.Fatalf("status = %s, want active under keep-active policy", got.Status)
	}
	if got.LastRun == nil || !got.LastRun.Equal(now) {
		t.Fatalf("LastRun = %v, want %v", got.LastRun, now)
	}
}

func TestExecuteContainsHandlerPanic(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, handlers := newTestExecutor(t, FailureMarkFailed, now)
	j := createJob(t, st, job.TypeDataProcessing, "* * * * *")
	handlers.Set(job.TypeDataProcessing, func(ctx context.Context, j job.Job) error {
		panic("boom")
	})

	// Must not panic out.
	exec.Execute(context.Background(), j)

	got, _ := st.FindByID(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed after panic", got.Status)
	}
}

func TestExecuteUnknownTypeUsesGenericHandler(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, _ := newTestExecutor(t, FailureMarkFailed, now)
	j := createJob(t, st, job.Type("holographic-backup"), "*/1 * * * *")

	exec.Execute(context.Background(), j)

	got, _ := st.FindByID(context.Background(), j.ID)
	if got.Status != job.StatusActive {
		t.Fatalf("unknown type should complete successfully, status = %s", got.Status)
	}
	if got.LastRun == nil {
		t.Fatal("LastRun not recorded for unknown type")
	}
}

func TestEmailHandlerRequiresRecipient(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	exec, st, _ := newTestExecutor(t, FailureMarkFailed, now)
	j := createJob(t, st, job.TypeEmail, "* * * * *") // no data.to

	exec.Execute(context.Background(), j)

	got, _ := st.FindByID(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("email job without recipient: status = %s, want failed", got.Status)
	}
}
