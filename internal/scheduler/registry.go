package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// entry is one live timer: the cron runner handle plus the expression it
// was built from, so a re-registration with a changed schedule replaces it.
type entry struct {
	id   cron.EntryID
	expr string
}

// Registry owns the job-id -> timer mapping. It is the only mutable
// shared structure in the core; every mutation goes through one mutex so
// the coordinator, the discovery loop, and API handlers can call it
// concurrently.
type Registry struct {
	eval *schedule.Evaluator
	log  logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]entry
	started bool
}

func NewRegistry(eval *schedule.Evaluator, log logx.Logger) *Registry {
	return &Registry{
		eval:    eval,
		log:     log,
		c:       cron.New(cron.WithLocation(eval.Location())),
		entries: make(map[string]entry),
	}
}

// Start begins dispatching timers. Registrations made before Start are
// honored once the runner starts.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.c.Start()
}

// Register installs a recurring trigger for jobID that invokes onFire at
// each instant computed from expr. Any existing entry for jobID is
// cancelled first, so re-registration is idempotent. If expr does not
// validate, nothing is installed and the error wraps
// schedule.ErrInvalidExpression.
func (r *Registry) Register(jobID, expr string, onFire func()) error {
	sched, err := r.eval.Schedule(expr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[jobID]; ok {
		r.c.Remove(old.id)
		r.log.Debug("timer replaced", logx.String("job_id", jobID), logx.String("old_expr", old.expr), logx.String("expr", expr))
	}

	id := r.c.Schedule(sched, cron.FuncJob(onFire))
	r.entries[jobID] = entry{id: id, expr: expr}
	return nil
}

// Cancel stops and removes the timer for jobID. Cancelling an unknown id
// is a no-op, not an error.
func (r *Registry) Cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[jobID]
	if !ok {
		return
	}
	r.c.Remove(e.id)
	delete(r.entries, jobID)
}

func (r *Registry) IsRegistered(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[jobID]
	return ok
}

// RegisteredIDs returns the currently scheduled job ids, sorted for
// stable logs and API responses.
func (r *Registry) RegisteredIDs() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Expression returns the cron expression a job was registered with.
func (r *Registry) Expression(jobID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[jobID]
	return e.expr, ok
}

// Stop cancels every entry and waits for the cron runner to wind down,
// bounded by ctx. Timer callbacks already dispatched keep running; Stop
// only guarantees no new firings.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	for id, e := range r.entries {
		r.c.Remove(e.id)
		delete(r.entries, id)
	}
	started := r.started
	r.started = false
	r.mu.Unlock()

	if !started {
		return
	}
	select {
	case <-r.c.Stop().Done():
	case <-ctx.Done():
	}
}
