package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// Service is the scheduler coordinator: the single scheduling authority
// in the process. It owns startup ordering, trigger dispatch, and
// shutdown; the HTTP layer talks to it and never to the registry
// directly.
type Service struct {
	cfg        Config
	instanceID string

	store store.Store
	eval  *schedule.Evaluator
	reg   *Registry
	exec  *Executor
	disc  *Discovery
	log   logx.Logger

	mu       sync.Mutex
	running  bool
	queue    chan fireEvent
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	shuttingDown atomic.Bool
	inFlight     atomic.Int32
	dropped      atomic.Uint64

	runCtx    context.Context
	runCancel context.CancelFunc
}

// fireEvent is one timer trigger awaiting a worker.
type fireEvent struct {
	jobID string
}

func New(cfg Config, st store.Store, eval *schedule.Evaluator, handlers *Handlers, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:        cfg,
		instanceID: uuid.NewString(),
		store:      st,
		eval:       eval,
		log:        log,
	}
	s.reg = NewRegistry(eval, log)
	s.exec = NewExecutor(st, eval, handlers, cfg.FailurePolicy, cfg.RunTimeout, log)
	s.disc = NewDiscovery(st, s, cfg.DiscoveryInterval, log)
	return s
}

// InstanceID identifies this scheduling authority in status output.
func (s *Service) InstanceID() string { return s.instanceID }

// Start loads active jobs, registers each, starts the timer runner, the
// worker pool, and the discovery loop. Jobs with invalid expressions are
// logged and skipped, never fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.shuttingDown.Load() {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.running = true
	s.queue = make(chan fireEvent, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	// Local captures prevent races if fields are swapped during Shutdown.
	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.mu.Unlock()

	// Initial registration from the store.
	active, err := s.store.FindActive(ctx)
	if err != nil {
		// Not fatal: discovery converges once the store is reachable.
		s.log.Warn("startup load of active jobs failed; relying on discovery", logx.Err(err))
	}
	registered := 0
	for _, j := range active {
		if err := s.RegisterJob(j); err != nil {
			s.log.Warn("skipping job at startup",
				logx.String("job_id", j.ID),
				logx.String("expr", j.CronSchedule),
				logx.Err(err),
			)
			continue
		}
		registered++
	}

	s.reg.Start()
	s.disc.Start(runCtx)

	s.log.Info("scheduler started",
		logx.String("instance_id", s.instanceID),
		logx.Int("workers", s.cfg.Workers),
		logx.Int("jobs", registered),
		logx.Duration("discovery_interval", s.cfg.DiscoveryInterval),
	)
	return nil
}

// ScheduleJob registers a single job immediately, without waiting for
// the next discovery pass. It is the create path's entry point.
func (s *Service) ScheduleJob(j job.Job) error {
	if s.shuttingDown.Load() {
		return ErrShuttingDown
	}
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	if !j.Status.Schedulable() {
		return ErrNotSchedulable
	}
	return s.RegisterJob(j)
}

// UnscheduleJob cancels the job's timer. Future firings stop
// immediately; an execution already in progress is not interrupted.
func (s *Service) UnscheduleJob(jobID string) {
	s.reg.Cancel(jobID)
}

// RegisterJob installs the timer for j. It implements the registrar
// contract used by the discovery loop; external callers go through
// ScheduleJob, which adds the lifecycle checks.
func (s *Service) RegisterJob(j job.Job) error {
	id := j.ID
	return s.reg.Register(id, j.CronSchedule, func() { s.enqueue(id) })
}

// CancelJob implements the registrar contract.
func (s *Service) CancelJob(id string) { s.reg.Cancel(id) }

// RegisteredJobIDs implements the registrar contract.
func (s *Service) RegisteredJobIDs() []string { return s.reg.RegisteredIDs() }

// enqueue hands a firing to the worker pool. A full queue drops the fire
// with a warning; the job's next cron tick recovers, and discovery keeps
// the registration intact.
func (s *Service) enqueue(jobID string) {
	if s.shuttingDown.Load() {
		return
	}
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- fireEvent{jobID: jobID}:
	default:
		s.dropped.Add(1)
		s.log.Warn("fire queue full, dropping trigger", logx.String("job_id", jobID))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan fireEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev := <-queue:
			s.inFlight.Add(1)
			s.runOne(ctx, ev)
			s.inFlight.Add(-1)
		}
	}
}

// runOne re-reads the job so a fire always acts on current store state:
// a schedule or status change between trigger and pickup is honored.
func (s *Service) runOne(ctx context.Context, ev fireEvent) {
	j, err := s.store.FindByID(ctx, ev.jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted since the trigger fired; drop the timer too.
			s.reg.Cancel(ev.jobID)
			return
		}
		s.log.Warn("fire skipped: job not readable", logx.String("job_id", ev.jobID), logx.Err(err))
		return
	}
	if !j.Status.Schedulable() {
		s.log.Debug("fire skipped: job not active",
			logx.String("job_id", j.ID),
			logx.String("status", string(j.Status)),
		)
		return
	}
	s.exec.Execute(ctx, j)
}

// Reconcile triggers one synchronous discovery pass.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.disc.Reconcile(ctx)
}

// Status reports instance identity, the live timer set, and discovery
// health.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	running := s.running
	queue := s.queue
	s.mu.Unlock()

	depth := 0
	if queue != nil {
		depth = len(queue)
	}
	return Snapshot{
		InstanceID:   s.instanceID,
		Running:      running,
		ShuttingDown: s.shuttingDown.Load(),
		TimerCount:   s.reg.Count(),
		JobIDs:       s.reg.RegisteredIDs(),
		QueueDepth:   depth,
		InFlight:     int(s.inFlight.Load()),
		Discovery:    s.disc.Health(),
	}
}

// Shutdown stops the scheduler: new registrations and firings are
// rejected from the first line, the discovery loop and all timers stop,
// and in-flight executions get a bounded grace period to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	start := time.Now()
	s.log.Info("scheduler shutting down")

	s.disc.Stop()

	regCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	s.reg.Stop(regCtx)
	cancel()

	s.mu.Lock()
	stopCh := s.stopCh
	runCancel := s.runCancel
	s.stopCh = nil
	s.queue = nil
	s.running = false
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	// Grace period for in-flight executions, then cancel their contexts.
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Warn("shutdown grace elapsed with work in flight",
			logx.Int("in_flight", int(s.inFlight.Load())),
		)
	case <-ctx.Done():
	}
	if runCancel != nil {
		runCancel()
	}

	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return nil
}
