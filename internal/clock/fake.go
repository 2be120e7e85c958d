package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance or Set is
// called. Pending timers fire, in deadline order, when the clock passes
// their deadline. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{deadline: c.current.Add(d), channel: ch}
	if d <= 0 {
		w.fired = true
		ch <- c.current
	} else {
		c.waiters = append(c.waiters, w)
		c.changed.Broadcast()
	}

	return &Timer{
		C: ch,
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w.stopped || w.fired {
				return false
			}
			w.stopped = true
			c.changed.Broadcast()
			return true
		},
	}
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is not after the new time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t, which may be earlier than the current time.
// Timers never fire when the clock moves backwards.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t

	var due, remaining []*waiter
	for _, w := range c.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(t):
			w.fired = true
			due = append(due, w)
		default:
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.changed.Broadcast()
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		select {
		case w.channel <- t:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers are pending. It closes the
// race between a goroutine arming a timer and the test advancing the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed, unfired timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
