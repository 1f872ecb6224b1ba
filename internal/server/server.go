// Package server exposes the HTTP API: job create/read endpoints and
// scheduler status. It performs store writes and input validation, then
// hands scheduling to the coordinator; it never touches timers directly.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/scheduler"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// Scheduler is the slice of the coordinator the API needs.
type Scheduler interface {
	ScheduleJob(j job.Job) error
	UnscheduleJob(id string)
	Status() scheduler.Snapshot
}

type Config struct {
	Addr           string
	RateLimitRPS   int
	RateLimitBurst int
}

type Server struct {
	cfg   Config
	store store.Store
	sched Scheduler
	eval  *schedule.Evaluator
	log   logx.Logger

	limiter *rate.Limiter
	httpSrv *http.Server
}

func New(cfg Config, st store.Store, sched Scheduler, eval *schedule.Evaluator, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{
		cfg:   cfg,
		store: st,
		sched: sched,
		eval:  eval,
		log:   log,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = cfg.RateLimitRPS
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

// Handler builds the route table. Exposed separately so tests can drive
// it with httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /scheduler/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.logRequests(h)
	return h
}

// Start begins serving in the background. Listen errors other than
// graceful-close are reported on the returned channel.
func (s *Server) Start() <-chan error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
