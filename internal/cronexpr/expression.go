// Package cronexpr parses five-field crontab expressions and computes
// their occurrences at minute resolution.
//
// Fields are, in order: minute (0-59), hour (0-23), day of month (1-31),
// month (1-12 or January..December) and day of week (0-6 or
// Sunday..Saturday). Each field accepts "*", single values, ranges "a-b",
// comma lists and "/step" suffixes. A day must satisfy both the
// day-of-month and the day-of-week field.
package cronexpr

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// Expression is a parsed schedule. The zero value matches nothing.
type Expression struct {
	minute    FieldSet
	hour      FieldSet
	day       FieldSet
	month     FieldSet
	dayOfWeek FieldSet
}

// Parse parses a whitespace separated five-field expression.
func Parse(text string) (Expression, error) {
	tokens := strings.Fields(text)
	if len(tokens) != 5 {
		return Expression{}, &ParseError{Err: ErrWrongFieldCount, Text: text, Count: len(tokens)}
	}

	var sets [5]FieldSet
	for i, token := range tokens {
		fs, err := ParseField(descriptors[i], token)
		if err != nil {
			return Expression{}, err
		}
		sets[i] = fs
	}

	return Expression{
		minute:    sets[Minute],
		hour:      sets[Hour],
		day:       sets[DayOfMonth],
		month:     sets[Month],
		dayOfWeek: sets[DayOfWeek],
	}, nil
}

// MustParse is like Parse but panics on error. Intended for expressions
// fixed at compile time.
func MustParse(text string) Expression {
	e, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("cronexpr.MustParse(%q): %v", text, err))
	}
	return e
}

// Field returns the parsed set for one position.
func (e Expression) Field(kind FieldKind) FieldSet {
	switch kind {
	case Minute:
		return e.minute
	case Hour:
		return e.hour
	case DayOfMonth:
		return e.day
	case Month:
		return e.month
	case DayOfWeek:
		return e.dayOfWeek
	default:
		return FieldSet{}
	}
}

// IsZero reports whether e is the zero Expression.
func (e Expression) IsZero() bool {
	return e.minute.IsEmpty() || e.hour.IsEmpty() || e.day.IsEmpty() ||
		e.month.IsEmpty() || e.dayOfWeek.IsEmpty()
}

// Matches reports whether the minute containing t satisfies every field.
func (e Expression) Matches(t time.Time) bool {
	return e.minute.Contains(t.Minute()) &&
		e.hour.Contains(t.Hour()) &&
		e.day.Contains(t.Day()) &&
		e.month.Contains(int(t.Month())) &&
		e.dayOfWeek.Contains(int(t.Weekday()))
}

// NextOccurrence returns the earliest minute boundary strictly after base
// that satisfies every field, or end itself when there is none before end.
// Computation happens in base's location.
func (e Expression) NextOccurrence(base, end time.Time) time.Time {
	if e.IsZero() {
		return end
	}
	loc := base.Location()
	endYear, endMonth, endDay := end.In(loc).Date()

	for {
		if !base.Before(end) {
			return end
		}

		year, mon, day := base.Date()
		month := int(mon)
		hour := base.Hour()

		minute, ok := e.minute.Next(base.Minute() + 1)
		carry := !ok
		if !ok {
			minute = e.minute.lowest
		}

		nextHour := hour
		if carry {
			nextHour++
		}
		h, ok := e.hour.Next(nextHour)
		carry = !ok
		if !ok {
			h = e.hour.lowest
		}
		if h != hour || carry {
			minute = e.minute.lowest
		}
		hour = h

		dayStart := day
		if carry {
			dayStart++
		}

		// Day and month advance together; a day that does not exist in
		// the chosen month pushes the search past it.
		for {
			d, ok := e.day.Next(dayStart)
			carry = !ok
			if !ok {
				d = e.day.lowest
			}
			if d != day || carry {
				hour, minute = e.hour.lowest, e.minute.lowest
			}

			monthStart := month
			if carry {
				monthStart++
			}
			m, ok := e.month.Next(monthStart)
			if !ok {
				m = e.month.lowest
				year++
			}
			if m != month || !ok {
				d = e.day.lowest
				hour, minute = e.hour.lowest, e.minute.lowest
			}
			month, day = m, d

			if day <= daysIn(year, month) {
				break
			}
			if !dateBefore(year, month, day, endYear, int(endMonth), endDay) {
				return end
			}
			dayStart = day + 1
		}

		candidate := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
		if !candidate.Before(end) {
			return end
		}
		if !candidate.After(base) {
			// Wall clock repeated (DST fold); step one minute past base.
			base = base.Truncate(time.Minute).Add(time.Minute)
			continue
		}
		if !e.dayOfWeek.Contains(int(candidate.Weekday())) {
			base = time.Date(year, time.Month(month), day, 23, 59, 0, 0, loc)
			continue
		}
		return candidate
	}
}

// Occurrences yields every occurrence strictly after base and strictly
// before end, in order. The sequence can be ranged over repeatedly.
func (e Expression) Occurrences(base, end time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		current := base
		for {
			next := e.NextOccurrence(current, end)
			if !next.Before(end) {
				return
			}
			if !yield(next) {
				return
			}
			current = next
		}
	}
}

// Format renders the expression with numeric fields.
func (e Expression) Format() string {
	return strings.Join([]string{
		e.minute.Format(true),
		e.hour.Format(true),
		e.day.Format(true),
		e.month.Format(true),
		e.dayOfWeek.Format(true),
	}, " ")
}

func (e Expression) String() string { return e.Format() }

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateBefore(y1, m1, d1, y2, m2, d2 int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	if m1 != m2 {
		return m1 < m2
	}
	return d1 < d2
}
