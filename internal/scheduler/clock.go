package scheduler

import "time"

// Clock abstracts the loop's notion of time so tests can drive passes
// deterministically. Now must return values carrying a monotonic reading
// (or a simulated equivalent); the loop only ever compares Now values with
// time.Time.Sub.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
