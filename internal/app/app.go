// Package app wires the daemon together: config, logging, store,
// scheduler, and the HTTP API, plus lifecycle ordering between them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/config"
	"github.com/Karthik-guddanti/digantara/internal/notify"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/scheduler"
	"github.com/Karthik-guddanti/digantara/internal/server"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store store.Store
	sched *scheduler.Service
	srv   *server.Server

	watchWG sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        storagePath(cfg),
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	eval, err := schedule.New(cfg.Scheduler.Timezone)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sender, err := buildSender(cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	policy, err := scheduler.ParseFailurePolicy(cfg.Scheduler.FailurePolicy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	handlers := scheduler.DefaultHandlers(sender, log.With(logx.String("comp", "handlers")))
	sched := scheduler.New(scheduler.Config{
		Workers:           cfg.Scheduler.Workers,
		QueueSize:         cfg.Scheduler.QueueSize,
		RunTimeout:        cfg.Scheduler.RunTimeoutOrDefault(),
		DiscoveryInterval: cfg.Scheduler.DiscoveryIntervalOrDefault(),
		ShutdownGrace:     cfg.Scheduler.ShutdownGraceOrDefault(),
		FailurePolicy:     policy,
	}, st, eval, handlers, log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   st,
		sched:   sched,
	}

	if cfg.ServerEnabled() {
		a.srv = server.New(server.Config{
			Addr:           cfg.Server.Addr,
			RateLimitRPS:   rateRPS(cfg),
			RateLimitBurst: rateBurst(cfg),
		}, st, sched, eval, log.With(logx.String("comp", "http")))
	}

	return a, nil
}

// Run starts everything and blocks until ctx is cancelled or the HTTP
// server fails, then shuts down in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	var srvErr <-chan error
	if a.srv != nil {
		srvErr = a.srv.Start()
	}

	// Config hot reload: logging level applies live; scheduler topology
	// changes need a restart and are logged as such.
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	sub := a.cfgm.Subscribe(1)
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.watchWG.Done()
		for cfg := range sub {
			a.applyConfig(cfg)
		}
	}()

	notifyReady(a.log)
	a.log.Info("daemon running", logx.String("instance_id", a.sched.InstanceID()))

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-srvErr:
		if ok && err != nil {
			a.log.Error("http server failed", logx.Err(err))
			runErr = err
		}
	}

	notifyStopping(a.log)
	a.shutdown()
	watchCancel()
	a.cfgm.Unsubscribe(sub)
	a.watchWG.Wait()
	return runErr
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.log.Info("config applied", logx.String("level", cfg.Logging.Level))
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Warn("http shutdown", logx.Err(err))
		}
	}
	if err := a.sched.Shutdown(ctx); err != nil {
		a.log.Warn("scheduler shutdown", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	_ = a.logs.Close()
}

func storagePath(cfg *config.Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return "data/scheduler.db"
}

func buildSender(cfg *config.Config, log logx.Logger) (notify.Sender, error) {
	if cfg.Notifier == nil || !cfg.Notifier.Telegram.Enabled {
		return notify.Nop{}, nil
	}
	return notify.NewTelegram(notify.TelegramConfig{
		Token:  cfg.Notifier.Telegram.Token,
		ChatID: cfg.Notifier.Telegram.ChatID,
	}, log.With(logx.String("comp", "telegram")))
}

func rateRPS(cfg *config.Config) int {
	if cfg.Server.RateLimit == nil {
		return 0
	}
	return cfg.Server.RateLimit.RPS
}

func rateBurst(cfg *config.Config) int {
	if cfg.Server.RateLimit == nil {
		return 0
	}
	return cfg.Server.RateLimit.Burst
}
