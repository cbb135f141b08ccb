// Package app assembles the daemon: configuration, logging, storage, the
// task scheduler and the built-in maintenance jobs.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chored/internal/config"
	"chored/internal/eventbus"
	"chored/internal/jobs/forms"
	"chored/internal/jobs/logreport"
	"chored/internal/jobs/prune"
	"chored/internal/scheduler"
	"chored/internal/storage"
	logx "chored/pkg/logx"
)

// Job is the unit the app schedules: a named, context-aware run function.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// App owns every long-lived component and their shutdown order.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus   *eventbus.Bus
	sched *scheduler.Scheduler
	store storage.Store

	haltOnError atomic.Bool

	mu         sync.Mutex
	registered map[string]bool // task names we own, by current config presence

	cancel  context.CancelFunc
	sub     *eventbus.Subscription
	cfgCh   chan *config.Config
	watchWG sync.WaitGroup
}

// New loads the config file, brings up logging and storage and registers the
// configured jobs. The scheduler loop is not started yet.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("component", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("app: open storage: %w", err)
		}
	}

	pause, _ := config.ParseDurationOrDefault("scheduler.pause", cfg.Scheduler.Pause, 0)
	idlePause, _ := config.ParseDurationOrDefault("scheduler.idle_pause", cfg.Scheduler.IdlePause, 0)

	bus := eventbus.New()
	a := &App{
		cfgMgr:     mgr,
		logSvc:     logSvc,
		log:        log,
		bus:        bus,
		store:      store,
		registered: map[string]bool{},
	}
	a.haltOnError.Store(cfg.Scheduler.HaltOnError)
	a.sched = scheduler.New(scheduler.Config{
		Pause:     pause,
		IdlePause: idlePause,
		Bus:       bus,
	}, log.With(logx.String("component", "scheduler")))

	if err := a.applyJobs(cfg, false); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("app: %w", err)
	}
	return a, nil
}

// Logger returns the app's root logger, for the main package.
func (a *App) Logger() logx.Logger { return a.log }

// Scheduler exposes the task registry for status inspection.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Start launches the scheduler loop, the config file watcher and the reload
// and event subscribers. ctx cancellation stops the watcher; use Stop for a
// full shutdown.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.sub = a.bus.Subscribe(64)
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		a.consumeEvents(a.sub.C)
	}()

	a.cfgCh = a.cfgMgr.Subscribe(1)
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		a.consumeReloads(watchCtx)
	}()

	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		if err := a.cfgMgr.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	a.log.Info("daemon started", logx.Int("tasks", len(a.sched.Snapshot())))
	return nil
}

// Stop shuts everything down in reverse dependency order and waits for the
// scheduler loop and the watcher goroutines to exit.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop()
	if a.sub != nil {
		a.sub.Cancel()
	}
	if a.cfgCh != nil {
		a.cfgMgr.Unsubscribe(a.cfgCh)
	}
	a.watchWG.Wait()
	a.log.Info("daemon stopped")
	a.closeResources()
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage", logx.Err(err))
		}
	}
	a.logSvc.Close()
}

// consumeEvents logs scheduler lifecycle events. A halt (only reachable with
// halt_on_error set) is surfaced as an error; restarting is left to the
// operator, who asked for halts in the first place.
func (a *App) consumeEvents(events <-chan eventbus.Event) {
	for e := range events {
		switch e.Kind {
		case eventbus.KindTaskStarted:
			a.log.Trace("task started", logx.String("task", e.Task))
		case eventbus.KindTaskFinished:
			if e.Err != "" {
				a.log.Warn("task finished with error",
					logx.String("task", e.Task),
					logx.Duration("took", e.Duration),
					logx.String("error", e.Err))
			} else {
				a.log.Debug("task finished",
					logx.String("task", e.Task),
					logx.Duration("took", e.Duration))
			}
		case eventbus.KindHalted:
			a.log.Error("scheduler halted by task failure",
				logx.String("task", e.Task),
				logx.String("error", e.Err))
		}
	}
}

// consumeReloads applies committed config changes from the watcher.
func (a *App) consumeReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.haltOnError.Store(cfg.Scheduler.HaltOnError)

	if err := a.applyJobs(cfg, true); err != nil {
		a.log.Error("config reload not fully applied", logx.Err(err))
		return
	}
	a.log.Info("config reloaded")
}

// applyJobs registers (or on reload, replaces) every configured job and
// deactivates jobs that disappeared from the config. Pause changes need a
// restart; job sets, schedules and enablement are hot.
func (a *App) applyJobs(cfg *config.Config, replace bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := map[string]bool{}
	register := func(job Job, schedule string, enabled bool) error {
		interval, err := config.ParseSchedule(schedule)
		if err != nil {
			return fmt.Errorf("job %s: %w", job.Name(), err)
		}
		err = a.sched.Register(job.Name(), scheduler.TaskOptions{
			Interval: interval,
			Enabled:  enabled,
			Replace:  replace,
		}, a.instrument(job))
		if err != nil {
			return err
		}
		seen[job.Name()] = true
		a.registered[job.Name()] = true
		return nil
	}

	if wr := cfg.Jobs.WarningReport; wr != nil {
		job := logreport.New(logreport.Config{
			Input:       wr.Input,
			Output:      wr.Output,
			IgnoreCodes: wr.IgnoreCodes,
		}, a.log)
		if err := register(job, wr.Schedule, wr.Enabled); err != nil {
			return err
		}
	}
	if pr := cfg.Jobs.Prune; pr != nil {
		job := prune.New(prune.Config{Root: pr.Root, Keep: pr.Keep}, a.log)
		if err := register(job, pr.Schedule, pr.Enabled); err != nil {
			return err
		}
	}
	for _, fc := range cfg.Jobs.Forms {
		job := forms.New(forms.Config{
			Name:       fc.Name,
			Ticker:     fc.Ticker,
			Template:   fc.Template,
			Input:      fc.Input,
			Output:     fc.Output,
			Prices:     fc.Prices,
			RatesFile:  fc.Rates.File,
			RatesURL:   fc.Rates.URL,
			RatePerSec: fc.Rates.RatePerSec,
		}, a.log)
		if err := register(job, fc.Schedule, fc.Enabled); err != nil {
			return err
		}
	}

	// A job removed from the config stays registered but is switched off;
	// Deactivate also waits out an in-flight run.
	for name := range a.registered {
		if seen[name] {
			continue
		}
		if err := a.sched.Deactivate(name); err != nil {
			return err
		}
		delete(a.registered, name)
		a.log.Info("job removed from config; task deactivated", logx.String("task", name))
	}
	return nil
}

// instrument wraps a job for the scheduler: the run is timed, recorded in
// storage when configured, and its error is swallowed unless the operator
// opted into halt-on-error semantics.
func (a *App) instrument(job Job) scheduler.Work {
	log := a.log.With(logx.String("task", job.Name()))
	return func(ctx context.Context) error {
		start := time.Now()
		err := job.Run(ctx)
		took := time.Since(start)

		if a.store != nil {
			entry := storage.RunEntry{
				At:         start,
				Name:       job.Name(),
				DurationMS: took.Milliseconds(),
				OK:         err == nil,
			}
			if err != nil {
				entry.Error = err.Error()
			}
			if serr := a.store.AppendRun(ctx, entry); serr != nil {
				log.Warn("recording run failed", logx.Err(serr))
			}
		}

		if err != nil && !a.haltOnError.Load() {
			log.Error("job failed", logx.Err(err), logx.Duration("took", took))
			return nil
		}
		return err
	}
}
