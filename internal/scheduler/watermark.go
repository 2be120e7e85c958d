package scheduler

import (
	"iter"
	"time"

	"github.com/guojianbin/TinyCron/internal/cronexpr"
)

// Watermark is the closed interval [Beginning, Ending] of time the loop
// has already evaluated. Consecutive watermarks abut with no gap and no
// overlap: each begins one nanosecond after the previous one ended.
type Watermark struct {
	Beginning time.Time
	Ending    time.Time
}

// IsZero reports whether no tick has happened yet.
func (w Watermark) IsZero() bool {
	return w.Beginning.IsZero() && w.Ending.IsZero()
}

// Advance returns the watermark for a tick observed at now. The first
// tick yields [now, now]. It reports false, leaving w unchanged, when now
// is before the next beginning, i.e. the clock went backwards.
func (w Watermark) Advance(now time.Time) (Watermark, bool) {
	if w.IsZero() {
		return Watermark{Beginning: now, Ending: now}, true
	}
	beginning := w.Ending.Add(time.Nanosecond)
	if now.Before(beginning) {
		return w, false
	}
	return Watermark{Beginning: beginning, Ending: now}, true
}

// Contains reports whether t lies inside the closed interval.
func (w Watermark) Contains(t time.Time) bool {
	return !t.Before(w.Beginning) && !t.After(w.Ending)
}

// Occurrences yields every occurrence of expr inside the closed interval.
func (w Watermark) Occurrences(expr cronexpr.Expression) iter.Seq[time.Time] {
	return expr.Occurrences(w.Beginning.Add(-time.Nanosecond), w.Ending.Add(time.Nanosecond))
}

// Due reports whether expr has at least one occurrence inside the interval.
func (w Watermark) Due(expr cronexpr.Expression) bool {
	end := w.Ending.Add(time.Nanosecond)
	return expr.NextOccurrence(w.Beginning.Add(-time.Nanosecond), end).Before(end)
}

func (w Watermark) String() string {
	return "[" + w.Beginning.Format(time.RFC3339Nano) + ", " + w.Ending.Format(time.RFC3339Nano) + "]"
}
