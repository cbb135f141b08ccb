// Package eventbus distributes scheduler lifecycle notifications to any
// component that wants to observe the task loop without coupling to it.
//
// Delivery is best-effort: Publish never blocks the loop, so a subscriber
// that falls behind loses events rather than stalling task execution.
package eventbus

import (
	"sync"
	"time"
)

// Kind labels a lifecycle notification.
type Kind string

const (
	// KindTaskStarted fires just before a task's work is invoked.
	KindTaskStarted Kind = "task.started"
	// KindTaskFinished fires once the work has returned, error or not.
	KindTaskFinished Kind = "task.finished"
	// KindHalted fires when a task failure stops the loop.
	KindHalted Kind = "scheduler.halted"
)

// Event is one lifecycle notification. Task is the registered task name;
// Duration and Err are only set on KindTaskFinished and KindHalted.
type Event struct {
	Kind     Kind
	At       time.Time
	Task     string
	Duration time.Duration
	Err      string
}

// Subscription is a live event feed. Read from C; call Cancel when done.
// After Cancel returns, C is closed and no further events arrive.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

func (s *Subscription) Cancel() { s.cancel() }

// Bus fans events out to subscribers. The zero value is not usable; use New.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func New() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Publish delivers e to every current subscriber. A subscriber whose buffer
// is full misses the event. Sends happen under the bus lock, which is safe
// because they never block, and it means a canceled subscription can never
// race a send on its closed channel.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a feed with the given channel buffer (minimum 16).
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 16 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: ch,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				delete(b.subs, id)
				close(ch)
				b.mu.Unlock()
			})
		},
	}
}
