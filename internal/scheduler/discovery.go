package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// registrar is the slice of the coordinator the discovery loop needs:
// install/remove timers and inspect the live set. The coordinator
// implements it; tests substitute fakes.
type registrar interface {
	RegisterJob(j job.Job) error
	CancelJob(id string)
	RegisteredJobIDs() []string
}

// Discovery converges the live timer set to the store's active jobs on a
// fixed interval. It is the safety net for jobs created or updated
// outside the in-process scheduling path.
type Discovery struct {
	store    store.Store
	reg      registrar
	interval time.Duration
	log      logx.Logger

	// storeErrLog throttles repeated store-failure logs: a down store
	// would otherwise emit one error per tick.
	storeErrLog *rate.Limiter

	mu     sync.Mutex
	health DiscoveryHealth

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewDiscovery(st store.Store, reg registrar, interval time.Duration, log logx.Logger) *Discovery {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Discovery{
		store:       st,
		reg:         reg,
		interval:    interval,
		log:         log,
		storeErrLog: rate.NewLimiter(rate.Every(time.Minute), 3),
	}
}

// Start launches the reconciliation loop. It returns immediately.
func (d *Discovery) Start(ctx context.Context) {
	d.mu.Lock()
	if d.stopCh != nil {
		d.mu.Unlock()
		return
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.health.Running = true
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	go d.loop(ctx, stopCh, doneCh)
}

// Stop halts the loop and waits for the in-progress pass, if any.
func (d *Discovery) Stop() {
	d.mu.Lock()
	stopCh, doneCh := d.stopCh, d.doneCh
	d.stopCh, d.doneCh = nil, nil
	d.health.Running = false
	d.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (d *Discovery) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// First pass immediately; startup registration may already have
	// happened, in which case this is a cheap no-op diff.
	d.safeReconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			d.safeReconcile(ctx)
		}
	}
}

// safeReconcile contains panics so one bad pass cannot stop the loop.
func (d *Discovery) safeReconcile(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in reconcile pass", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			d.recordPass(fmt.Errorf("panic: %v", r), 0, 0)
		}
	}()
	added, removed, err := d.reconcile(ctx)
	d.recordPass(err, added, removed)
}

// Reconcile runs one convergence pass synchronously. After it returns
// without error, the registered set equals the store's active set
// (modulo jobs whose expressions no longer validate, which are skipped).
func (d *Discovery) Reconcile(ctx context.Context) error {
	added, removed, err := d.reconcile(ctx)
	d.recordPass(err, added, removed)
	return err
}

func (d *Discovery) reconcile(ctx context.Context) (added, removed int, err error) {
	active, err := d.store.FindActive(ctx)
	if err != nil {
		if d.storeErrLog.Allow() {
			d.log.Warn("reconcile: store unavailable", logx.Err(err))
		}
		return 0, 0, fmt.Errorf("find active jobs: %w", err)
	}

	activeByID := make(map[string]job.Job, len(active))
	for _, j := range active {
		activeByID[j.ID] = j
	}

	registered := d.reg.RegisteredJobIDs()
	registeredSet := make(map[string]struct{}, len(registered))
	for _, id := range registered {
		registeredSet[id] = struct{}{}
	}

	// toAdd: active in the store but not scheduled.
	for id, j := range activeByID {
		if _, ok := registeredSet[id]; ok {
			continue
		}
		if regErr := d.reg.RegisterJob(j); regErr != nil {
			// Invalid expressions are logged and skipped, never fatal to
			// the pass; the job simply stays unscheduled.
			if errors.Is(regErr, schedule.ErrInvalidExpression) {
				d.log.Warn("reconcile: skipping job with invalid schedule",
					logx.String("job_id", id),
					logx.String("expr", j.CronSchedule),
					logx.Err(regErr),
				)
				continue
			}
			d.log.Warn("reconcile: register failed", logx.String("job_id", id), logx.Err(regErr))
			continue
		}
		added++
		d.log.Info("reconcile: registered job", logx.String("job_id", id), logx.String("job", j.Name))
	}

	// toRemove: scheduled but no longer active in the store.
	for _, id := range registered {
		if _, ok := activeByID[id]; ok {
			continue
		}
		d.reg.CancelJob(id)
		removed++
		d.log.Info("reconcile: cancelled job", logx.String("job_id", id))
	}

	return added, removed, nil
}

func (d *Discovery) recordPass(err error, added, removed int) {
	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health.Passes++
	d.health.Registered += uint64(added)
	d.health.Cancelled += uint64(removed)
	d.health.LastPass = &now
	if err != nil {
		d.health.LastError = err.Error()
	} else {
		d.health.LastError = ""
	}
}

// Health returns a copy of the loop's health counters.
func (d *Discovery) Health() DiscoveryHealth {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}
