package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"chored/internal/eventbus"
	logx "chored/pkg/logx"
)

var (
	// ErrUnknownTask is returned when a control operation names a task that
	// was never registered.
	ErrUnknownTask = errors.New("scheduler: unknown task")

	// ErrDuplicateTask is returned by Register when the name is already taken
	// and TaskOptions.Replace was not set.
	ErrDuplicateTask = errors.New("scheduler: task already registered")

	// ErrAlreadyRunning is returned by Start/Resume while the loop is active
	// (or a previous loop goroutine has not fully exited).
	ErrAlreadyRunning = errors.New("scheduler: already running")
)

// Work is a task's unit of work. Arguments are captured by the closure.
//
// The context carries no deadline and is never canceled by the scheduler;
// it exists so work can thread it through to I/O helpers.
type Work func(ctx context.Context) error

// TaskOptions configures a task at registration time.
type TaskOptions struct {
	// Interval is the minimum spacing between invocation starts.
	// Zero or negative means "every pass while enabled".
	Interval time.Duration

	// Enabled registers the task already activated. Default is disabled.
	Enabled bool

	// Replace allows re-registering an existing name, swapping its work,
	// interval and enabled state in place. Without it Register fails with
	// ErrDuplicateTask.
	Replace bool
}

// Config controls the scheduler.
type Config struct {
	// Pause is slept after every invocation before the next task is
	// considered. Default 100ms.
	Pause time.Duration

	// IdlePause is slept after a full pass that invoked nothing, so an idle
	// registry does not spin the CPU. Default: same as Pause.
	IdlePause time.Duration

	// Clock is injectable for tests. Default: the system clock.
	Clock Clock

	// Bus, when non-nil, receives a lifecycle event for every invocation
	// and for a halt (see eventbus.Kind).
	Bus *eventbus.Bus
}

// task is one registry entry. All fields are guarded by Scheduler.mu.
type task struct {
	name     string
	work     Work
	interval time.Duration

	enabled bool
	running bool

	// seeded reports whether lastTrigger has been initialized for an
	// interval task (first sight only seeds, it does not invoke).
	seeded      bool
	lastTrigger time.Time
}

// TaskInfo is a point-in-time snapshot of one registry entry.
type TaskInfo struct {
	Name        string
	Interval    time.Duration
	Enabled     bool
	Running     bool
	LastTrigger time.Time
}

// Scheduler owns the task registry and the single loop goroutine.
// All caller-facing methods are safe for concurrent use.
type Scheduler struct {
	mu   sync.Mutex
	idle *sync.Cond // broadcast on every running true->false transition

	tasks map[string]*task
	order []*task // registration order

	active   bool
	loopDone chan struct{} // non-nil while a loop goroutine exists

	pause     time.Duration
	idlePause time.Duration
	clock     Clock
	bus       *eventbus.Bus
	log       logx.Logger
}
