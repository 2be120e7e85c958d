// Package clock abstracts the time source so the scheduler can be driven
// deterministically in tests. Production code uses Real; tests use Fake.
package clock

import "time"

// Clock is the subset of the time package the scheduler depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer that fires once after d.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer. Read the event from C; call Stop to release it.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped the timer.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stopFunc: t.Stop}
}
