package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	logx "chored/pkg/logx"
)

const defaultPause = 100 * time.Millisecond

func New(cfg Config, log logx.Logger) *Scheduler {
	if cfg.Pause <= 0 {
		cfg.Pause = defaultPause
	}
	if cfg.IdlePause <= 0 {
		cfg.IdlePause = cfg.Pause
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	s := &Scheduler{
		tasks:     map[string]*task{},
		pause:     cfg.Pause,
		idlePause: cfg.IdlePause,
		clock:     cfg.Clock,
		bus:       cfg.Bus,
		log:       log,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Register inserts the descriptor for name, disabled unless opt.Enabled.
// An existing name is only overwritten when opt.Replace is set; the entry
// then keeps its registration-order slot but its trigger history is reset.
func (s *Scheduler) Register(name string, opt TaskOptions, work Work) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("scheduler: task name required")
	}
	if work == nil {
		return fmt.Errorf("scheduler: task %q: work required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[name]; ok {
		if !opt.Replace {
			return fmt.Errorf("task %q: %w", name, ErrDuplicateTask)
		}
		// In-place swap so a pass that already snapshotted the registry keeps
		// observing a consistent descriptor.
		t.work = work
		t.interval = opt.Interval
		t.enabled = opt.Enabled
		t.seeded = false
		t.lastTrigger = time.Time{}
		s.log.Debug("task replaced", logx.String("task", name), logx.Duration("interval", opt.Interval))
		return nil
	}

	t := &task{
		name:     name,
		work:     work,
		interval: opt.Interval,
		enabled:  opt.Enabled,
	}
	s.tasks[name] = t
	s.order = append(s.order, t)
	s.log.Debug("task registered", logx.String("task", name), logx.Duration("interval", opt.Interval))
	return nil
}

// Activate enables the task. Idempotent.
func (s *Scheduler) Activate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, ErrUnknownTask)
	}
	t.enabled = true
	s.log.Debug("activated task", logx.String("task", name))
	return nil
}

// Deactivate disables the task and blocks until it is observably idle.
// It never returns while an invocation of the task is in flight.
func (s *Scheduler) Deactivate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, ErrUnknownTask)
	}
	// Flip enabled first so the loop cannot select the task again, then wait
	// out an invocation that is already in flight.
	t.enabled = false
	for t.running {
		s.idle.Wait()
	}
	s.log.Debug("deactivated task", logx.String("task", name))
	return nil
}

// IsRunning reports whether an invocation of the task is in flight right now.
func (s *Scheduler) IsRunning(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return false, fmt.Errorf("task %q: %w", name, ErrUnknownTask)
	}
	return t.running, nil
}

// Snapshot returns the registry state in registration order.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, TaskInfo{
			Name:        t.name,
			Interval:    t.interval,
			Enabled:     t.enabled,
			Running:     t.running,
			LastTrigger: t.lastTrigger,
		})
	}
	return out
}

// Start begins driving the loop on a new background goroutine.
// It fails with ErrAlreadyRunning while a loop goroutine exists, including
// the window between a halt and that goroutine's exit.
func (s *Scheduler) Start() error {
	return s.start("scheduler service started")
}

// Resume is Start under a different log line, for callers restarting after
// Stop or after a halt.
func (s *Scheduler) Resume() error {
	return s.start("scheduler service resumed")
}

func (s *Scheduler) start(msg string) error {
	s.mu.Lock()
	if s.active || s.loopDone != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.active = true
	done := make(chan struct{})
	s.loopDone = done
	s.mu.Unlock()

	s.log.Debug(msg)
	go s.run(done)
	return nil
}

// Stop clears the active flag and waits for the loop goroutine to exit.
// An in-flight invocation always completes; once Stop returns, no new
// invocation begins until the next Start. Stopping an idle scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	done := s.loopDone
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if wasActive {
		s.log.Debug("scheduler service stopped")
	}
}
