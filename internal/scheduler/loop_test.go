package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"chored/internal/eventbus"
	logx "chored/pkg/logx"
)

// fakeClock is a manually driven clock. Sleep is a no-op because tests drive
// passes one at a time and set the time explicitly between them.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(time.Duration) {}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestScheduler(clock Clock) *Scheduler {
	return New(Config{Clock: clock}, logx.Nop())
}

// forcePass marks the loop active and scans the registry once, the way run()
// would between sleeps.
func forcePass(t *testing.T, s *Scheduler) int {
	t.Helper()
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	invoked, exit := s.pass(context.Background())
	if exit {
		t.Fatalf("pass exited unexpectedly")
	}
	return invoked
}

func TestSinglePassInvokesOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestScheduler(clock)

	count := 0
	if err := s.Register("T", TaskOptions{}, func(ctx context.Context) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Activate("T"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if got := forcePass(t, s); got != 1 {
		t.Fatalf("invoked = %d, want 1", got)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	running, err := s.IsRunning("T")
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Fatal("running should be false between invocations")
	}
}

func TestIntervalSeedThenMinimumSpacing(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := &fakeClock{now: base}
	s := newTestScheduler(clock)

	var invokedAt []time.Time
	if err := s.Register("T", TaskOptions{Interval: 5 * time.Second}, func(ctx context.Context) error {
		invokedAt = append(invokedAt, clock.Now())
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Activate("T"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// Drive one pass per simulated second, t = 0..11.
	for sec := 0; sec <= 11; sec++ {
		clock.set(base.Add(time.Duration(sec) * time.Second))
		forcePass(t, s)
	}

	// t=0 only seeds; invocations land at t=5 and t=10.
	if len(invokedAt) != 2 {
		t.Fatalf("invocations = %d, want 2 (at %v)", len(invokedAt), invokedAt)
	}
	if got := invokedAt[0].Sub(base); got != 5*time.Second {
		t.Fatalf("first invocation at +%v, want +5s", got)
	}
	if got := invokedAt[1].Sub(base); got != 10*time.Second {
		t.Fatalf("second invocation at +%v, want +10s", got)
	}
}

func TestIntervalIsALowerBound(t *testing.T) {
	base := time.Unix(2000, 0)
	clock := &fakeClock{now: base}
	s := newTestScheduler(clock)

	const interval = 3 * time.Second
	var starts []time.Time
	if err := s.Register("T", TaskOptions{Interval: interval}, func(ctx context.Context) error {
		starts = append(starts, clock.Now())
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Activate("T"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// Irregular pass times, including several closer together than the interval.
	for _, off := range []time.Duration{0, 500 * time.Millisecond, time.Second,
		3 * time.Second, 3500 * time.Millisecond, 4 * time.Second,
		7 * time.Second, 8 * time.Second, 11 * time.Second} {
		clock.set(base.Add(off))
		forcePass(t, s)
	}

	if len(starts) < 2 {
		t.Fatalf("expected at least 2 invocations, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval {
			t.Fatalf("invocation starts %v apart, want >= %v", gap, interval)
		}
	}
}

func TestDisabledTaskNeverInvoked(t *testing.T) {
	base := time.Unix(3000, 0)
	clock := &fakeClock{now: base}
	s := newTestScheduler(clock)

	count := 0
	if err := s.Register("idle", TaskOptions{Interval: time.Second}, func(ctx context.Context) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for sec := 0; sec < 10; sec++ {
		clock.set(base.Add(time.Duration(sec) * time.Second))
		forcePass(t, s)
	}
	if count != 0 {
		t.Fatalf("disabled task invoked %d times", count)
	}
}

func TestNonPositiveIntervalRunsEveryPass(t *testing.T) {
	clock := &fakeClock{now: time.Unix(4000, 0)}
	s := newTestScheduler(clock)

	count := 0
	if err := s.Register("T", TaskOptions{Interval: -1 * time.Second, Enabled: true},
		func(ctx context.Context) error {
			count++
			return nil
		}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		forcePass(t, s)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestPassFollowsRegistrationOrder(t *testing.T) {
	clock := &fakeClock{now: time.Unix(5000, 0)}
	s := newTestScheduler(clock)

	var got []string
	for _, name := range []string{"c", "a", "b"} {
		name := name
		if err := s.Register(name, TaskOptions{Enabled: true}, func(ctx context.Context) error {
			got = append(got, name)
			return nil
		}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	forcePass(t, s)
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invocations = %v, want %v", got, want)
		}
	}
}

func TestStopMidScanAbortsRemainder(t *testing.T) {
	clock := &fakeClock{now: time.Unix(6000, 0)}
	s := newTestScheduler(clock)

	second := 0
	// The first task flips the active flag mid-invocation, standing in for a
	// concurrent Stop() landing while the scan is underway.
	if err := s.Register("first", TaskOptions{Enabled: true}, func(ctx context.Context) error {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("second", TaskOptions{Enabled: true}, func(ctx context.Context) error {
		second++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	invoked, exit := s.pass(context.Background())
	if !exit {
		t.Fatal("pass should report exit after mid-scan stop")
	}
	if invoked != 1 {
		t.Fatalf("invoked = %d, want 1", invoked)
	}
	if second != 0 {
		t.Fatalf("second task invoked %d times after stop", second)
	}
}

func TestTaskErrorHaltsLoop(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(16)
	defer sub.Cancel()

	s := New(Config{Pause: time.Millisecond, IdlePause: time.Millisecond, Bus: bus}, logx.Nop())

	if err := s.Register("bad", TaskOptions{Enabled: true}, func(ctx context.Context) error {
		return context.DeadlineExceeded // any error will do
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	otherRuns := 0
	if err := s.Register("other", TaskOptions{Interval: time.Hour, Enabled: true},
		func(ctx context.Context) error {
			otherRuns++
			return nil
		}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	halted := false
	deadline := time.After(2 * time.Second)
	for !halted {
		select {
		case ev := <-sub.C:
			if ev.Kind == eventbus.KindHalted {
				if ev.Task != "bad" || ev.Err == "" {
					t.Fatalf("halt event = %+v", ev)
				}
				halted = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for halt event")
		}
	}

	// The loop goroutine exits on its own after a halt; Stop just reaps it.
	s.Stop()

	if otherRuns != 0 {
		t.Fatalf("other task ran %d times after halt", otherRuns)
	}
	running, err := s.IsRunning("other")
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Fatal("other task reported running after halt")
	}

	// A fresh Start is accepted once the halted goroutine is gone.
	if err := s.Start(); err != nil {
		t.Fatalf("Start after halt: %v", err)
	}
	s.Stop()
}

func TestTaskPanicHaltsLoopNotProcess(t *testing.T) {
	s := New(Config{Pause: time.Millisecond, IdlePause: time.Millisecond}, logx.Nop())

	if err := s.Register("boom", TaskOptions{Enabled: true}, func(ctx context.Context) error {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Stop blocks until the loop goroutine (already halted by the panic) exits.
	deadline := time.After(2 * time.Second)
	doneCh := make(chan struct{})
	go func() {
		s.Stop()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-deadline:
		t.Fatal("Stop did not return after panic halt")
	}
}

func TestBusReceivesTaskLifecycleEvents(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(16)
	defer sub.Cancel()

	clock := &fakeClock{now: time.Unix(7000, 0)}
	s := New(Config{Clock: clock, Bus: bus}, logx.Nop())

	if err := s.Register("T", TaskOptions{Enabled: true}, func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	forcePass(t, s)

	var got []eventbus.Event
	for len(got) < 2 {
		select {
		case ev := <-sub.C:
			got = append(got, ev)
		default:
			t.Fatalf("missing events, got %v", got)
		}
	}
	if got[0].Kind != eventbus.KindTaskStarted || got[1].Kind != eventbus.KindTaskFinished {
		t.Fatalf("event order = %v", got)
	}
	if got[0].Task != "T" || got[1].Task != "T" {
		t.Fatalf("events carry wrong task name: %v", got)
	}
	if got[1].Err != "" {
		t.Fatalf("clean run should have no error: %+v", got[1])
	}
}
