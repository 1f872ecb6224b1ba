package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// Executor runs one job firing end to end: handler dispatch, then store
// bookkeeping. Every firing settles into a success or a failure; handler
// errors and panics never escape Execute.
type Executor struct {
	store    store.Store
	eval     *schedule.Evaluator
	handlers *Handlers
	policy   FailurePolicy
	timeout  time.Duration
	log      logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewExecutor(st store.Store, eval *schedule.Evaluator, handlers *Handlers, policy FailurePolicy, timeout time.Duration, log logx.Logger) *Executor {
	return &Executor{
		store:    st,
		eval:     eval,
		handlers: handlers,
		policy:   policy,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// Execute runs j's handler and applies post-run bookkeeping:
//
//	success: mark completed (status back to active, last_run recorded),
//	         then update next_run from the cron schedule;
//	failure: status per the failure policy, last_run recorded, next_run
//	         left untouched.
//
// Store errors during bookkeeping are logged and abandoned for this
// tick; the job's next trigger re-reads everything from the store, so
// the next firing is the retry mechanism.
func (e *Executor) Execute(ctx context.Context, j job.Job) {
	start := e.now().UTC()
	log := e.log.With(logx.String("job_id", j.ID), logx.String("job", j.Name), logx.String("type", string(j.Type)))

	err := e.runHandler(ctx, j)
	took := e.now().Sub(start)

	if err != nil {
		log.Warn("job run failed", logx.Err(err), logx.Duration("took", took))
		e.settleFailure(ctx, j, start, log)
		return
	}

	log.Info("job run ok", logx.Duration("took", took))
	e.settleSuccess(ctx, j, start, log)
}

// runHandler dispatches to the type handler with the per-run timeout and
// converts panics into errors so a broken handler cannot take down the
// worker that ran it.
func (e *Executor) runHandler(ctx context.Context, j job.Job) (err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			e.log.Error("panic in job handler",
				logx.String("job_id", j.ID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	return e.handlers.For(j.Type)(ctx, j)
}

func (e *Executor) settleSuccess(ctx context.Context, j job.Job, start time.Time, log logx.Logger) {
	if err := e.store.MarkCompleted(ctx, j.ID, start); err != nil {
		log.Error("mark completed failed", logx.Err(err))
		return
	}

	next, err := e.eval.Next(j.CronSchedule, e.now())
	if err != nil {
		// The expression was valid at registration time; a failure here
		// means the stored schedule changed under us to something broken.
		log.Error("next run not computable", logx.String("expr", j.CronSchedule), logx.Err(err))
		return
	}
	if err := e.store.UpdateNextRun(ctx, j.ID, next); err != nil {
		log.Error("update next run failed", logx.Err(err))
		return
	}
	log.Debug("job settled", logx.Time("next_run", next))
}

func (e *Executor) settleFailure(ctx context.Context, j job.Job, start time.Time, log logx.Logger) {
	switch e.policy {
	case FailureKeepActive:
		// Status stays active so the live timer's next fire retries the
		// job. Only last_run is recorded; next_run is untouched.
		if err := e.store.MarkCompleted(ctx, j.ID, start); err != nil {
			log.Error("record failed run failed", logx.Err(err))
		}
	default:
		if err := e.store.MarkFailed(ctx, j.ID, start); err != nil {
			log.Error("mark failed failed", logx.Err(err))
		}
	}
}
