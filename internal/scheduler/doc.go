// Package scheduler provides the cooperative periodic-task loop at the heart
// of chored.
//
// # Overview
//
// Callers register named recurring work units ("tasks") that start out
// disabled, then enable them with Activate. A single background goroutine
// scans the registry in registration order and invokes every eligible task
// synchronously, pausing briefly after each invocation. Tasks therefore never
// run concurrently with one another.
//
// # Intervals
//
// A task's interval is a minimum spacing between invocation starts, never an
// exact period: actual spacing also absorbs the other tasks' execution time
// and the fixed inter-invocation pause. A task without an interval (or with a
// non-positive one) runs on every pass while enabled. The first pass that
// sees an interval task only seeds its last-trigger time and does not invoke
// it. Interval comparisons use the monotonic reading carried by time.Time, so
// wall-clock adjustments cannot starve or double-fire a task.
//
// # Lifecycle and failure
//
// Start/Resume reject a second concurrent loop; Stop waits for the loop
// goroutine to fully exit, so after Stop returns no new invocation begins.
// Deactivate blocks until an in-flight invocation of that task (if any) has
// finished. There is no cancellation of in-flight work and no per-task
// timeout: a stalled task stalls the whole loop.
//
// An error (or panic) escaping a task's work halts the loop. No task fires
// again until the caller issues a fresh Start. Hosts that want per-task
// isolation must wrap their work functions accordingly.
package scheduler
