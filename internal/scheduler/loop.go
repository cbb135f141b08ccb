package scheduler

import (
	"context"
	"fmt"

	"chored/internal/eventbus"
	logx "chored/pkg/logx"
)

// run drives registry passes until the active flag clears or a task's work
// fails. It is the only goroutine that mutates running/lastTrigger.
func (s *Scheduler) run(done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.active = false
		if s.loopDone == done {
			s.loopDone = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	ctx := context.Background()
	for {
		s.mu.Lock()
		if !s.active {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		invoked, exit := s.pass(ctx)
		if exit {
			return
		}
		if invoked == 0 {
			// The source registry spins when nothing is eligible; pause
			// instead so an idle registry does not burn a core.
			s.clock.Sleep(s.idlePause)
		}
	}
}

// pass scans the registry once in registration order, invoking every eligible
// task synchronously. It reports how many tasks were invoked and whether the
// loop must exit (stopped mid-scan, or a task failed).
func (s *Scheduler) pass(ctx context.Context) (invoked int, exit bool) {
	s.mu.Lock()
	// Snapshot registration order; selection state is re-read per task.
	order := make([]*task, len(s.order))
	copy(order, s.order)
	s.mu.Unlock()

	for _, t := range order {
		s.mu.Lock()
		// Fast-stop: a Stop() issued mid-pass aborts the remainder of the
		// scan before the next task is considered.
		if !s.active {
			s.mu.Unlock()
			return invoked, true
		}
		if !t.enabled {
			s.mu.Unlock()
			continue
		}
		now := s.clock.Now()
		if t.interval > 0 {
			if !t.seeded {
				// First sight of an interval task only seeds the timer.
				t.seeded = true
				t.lastTrigger = now
				s.mu.Unlock()
				continue
			}
			if now.Sub(t.lastTrigger) < t.interval {
				s.mu.Unlock()
				continue
			}
		}
		// Stamp at selection time so a long-running invocation is charged
		// against its own next interval.
		t.lastTrigger = now
		t.running = true
		s.mu.Unlock()

		s.publish(eventbus.Event{Kind: eventbus.KindTaskStarted, At: now, Task: t.name})
		err := s.invoke(ctx, t)
		dur := s.clock.Now().Sub(now)

		s.mu.Lock()
		t.running = false
		s.idle.Broadcast()
		s.mu.Unlock()

		ev := eventbus.Event{Kind: eventbus.KindTaskFinished, At: now, Task: t.name, Duration: dur}
		if err != nil {
			ev.Err = err.Error()
		}
		s.publish(ev)

		if err != nil {
			// One bad task halts the whole loop; nothing fires again until
			// an explicit Start().
			s.log.Error("task failed; scheduler halted",
				logx.String("task", t.name), logx.Err(err))
			ev.Kind = eventbus.KindHalted
			s.publish(ev)
			return invoked, true
		}

		invoked++
		s.clock.Sleep(s.pause)
	}
	return invoked, false
}

// invoke runs the work synchronously, converting a panic into an error so a
// misbehaving task takes down the loop, not the process.
func (s *Scheduler) invoke(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.name, r)
		}
	}()
	return t.work(ctx)
}

func (s *Scheduler) publish(e eventbus.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(e)
}
