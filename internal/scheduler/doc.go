// Package scheduler is the scheduling core: it keeps a live timer per
// active job, executes jobs when their cron schedule fires, and
// periodically reconciles the timer set against the job store.
//
// # Components
//
//   - Registry: owns the job-id -> timer mapping over a single cron
//     runner. Registration is idempotent (cancel-then-add) and rejects
//     invalid expressions before anything is installed.
//   - Executor: runs the type-specific handler for one firing and writes
//     the result back to the store (last-run, next-run, status). Handler
//     errors and panics are contained; they never reach the cron runner.
//   - Discovery: on a fixed interval, diffs the store's active jobs
//     against the registry and converges the registry to the store.
//     It is the safety net for registrations that bypassed the in-process
//     create path (e.g. a schedule updated directly in the store).
//   - Service: the coordinator. Loads active jobs on start, dispatches
//     firings onto a worker pool, and owns startup/shutdown ordering.
//
// # Concurrency
//
// Timer firings are independent units of work: each fire is enqueued and
// picked up by a pool worker, so one slow job does not block another's
// trigger. Nothing prevents a job's next fire from overlapping a still
// running execution when its cron interval is shorter than its runtime.
//
// # Failure policy
//
// What happens to a job whose handler fails is configurable: it either
// moves to failed until something reactivates it (default), or stays
// active and is retried at its next natural trigger.
package scheduler
