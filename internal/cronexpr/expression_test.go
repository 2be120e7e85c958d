package cronexpr

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func mustParse(t *testing.T, text string) Expression {
	t.Helper()
	e, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return e
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestParse_Valid(t *testing.T) {
	expressions := []string{
		"* * * * *",
		"0 7 * * *",
		"*/15 0-6 1,15 * 1-5",
		"30 3 * * Sun",
		"0 0 1 jan *",
		"  5  4   *  *  *  ",
		"0-30/5 * * * *",
		"0 12 * Jun-Aug Sat,Sun",
	}
	for _, text := range expressions {
		t.Run(text, func(t *testing.T) {
			if _, err := Parse(text); err != nil {
				t.Errorf("Parse(%q) = %v, want nil", text, err)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"too few fields", "* * * *", ErrWrongFieldCount},
		{"too many fields", "* * * * * *", ErrWrongFieldCount},
		{"empty", "", ErrWrongFieldCount},
		{"minute out of range", "60 * * * *", ErrOutOfRange},
		{"hour out of range", "* 24 * * *", ErrOutOfRange},
		{"day zero", "* * 0 * *", ErrOutOfRange},
		{"month thirteen", "* * * 13 *", ErrOutOfRange},
		{"weekday seven", "* * * * 7", ErrOutOfRange},
		{"unknown month", "* * * foo *", ErrUnknownName},
		{"garbage", "a b c d e", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.text, err, tt.wantErr)
			}
			if !e.IsZero() {
				t.Error("expected zero expression on error")
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on a bad expression")
		}
	}()
	MustParse("61 * * * *")
}

func TestTryParse(t *testing.T) {
	fallback := MustParse("0 0 * * *")

	ok := TryParse("*/5 * * * *")
	if !ok.OK() || ok.Err() != nil {
		t.Fatalf("TryParse valid: OK=%v err=%v", ok.OK(), ok.Err())
	}
	if got := ok.Or(fallback).Format(); got != "0,5,10,15,20,25,30,35,40,45,50,55 * * * *" {
		t.Errorf("Or() on success = %q", got)
	}

	bad := TryParse("* * *")
	if bad.OK() {
		t.Fatal("TryParse invalid reported OK")
	}
	if !errors.Is(bad.Err(), ErrWrongFieldCount) {
		t.Errorf("Err() = %v", bad.Err())
	}
	if !bad.Expression().IsZero() {
		t.Error("Expression() should be zero on failure")
	}
	if got := bad.Or(fallback).Format(); got != "0 0 * * *" {
		t.Errorf("Or() on failure = %q", got)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"* * * * *", "* * * * *"},
		{"1-1 0-23 1-31 jan-dec sun-sat", "1 * * * *"},
		{"0 9 * * mon-fri", "0 9 * * 1-5"},
		{"*/30 8-18/2 1,15 feb *", "0,30 8,10,12,14,16,18 1,15 2 *"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			e := mustParse(t, tt.text)
			if got := e.Format(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
			again := mustParse(t, e.Format())
			if again.Format() != e.Format() {
				t.Errorf("reparse changed %q to %q", e.Format(), again.Format())
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	farEnd := utc(2100, time.January, 1, 0, 0)

	tests := []struct {
		name string
		expr string
		base time.Time
		want time.Time
	}{
		{"every minute", "* * * * *", utc(2025, 3, 10, 12, 0), utc(2025, 3, 10, 12, 1)},
		{"strictly after base", "0 12 * * *", utc(2025, 3, 10, 12, 0), utc(2025, 3, 11, 12, 0)},
		{"seconds ignored", "* * * * *", utc(2025, 3, 10, 12, 0).Add(30 * time.Second), utc(2025, 3, 10, 12, 1)},
		{"minute carries hour", "15 * * * *", utc(2025, 3, 10, 12, 30), utc(2025, 3, 10, 13, 15)},
		{"hour carries day", "0 6 * * *", utc(2025, 3, 10, 7, 0), utc(2025, 3, 11, 6, 0)},
		{"day carries month", "0 0 5 * *", utc(2025, 3, 10, 0, 0), utc(2025, 4, 5, 0, 0)},
		{"month carries year", "0 0 1 1 *", utc(2025, 3, 10, 0, 0), utc(2026, 1, 1, 0, 0)},
		{"year end rollover", "* * * * *", utc(2025, 12, 31, 23, 59), utc(2026, 1, 1, 0, 0)},
		{"hour advance resets minute", "10,50 9-17 * * *", utc(2025, 3, 10, 8, 55), utc(2025, 3, 10, 9, 10)},
		{"skips short months", "0 0 31 * *", utc(2025, 4, 1, 0, 0), utc(2025, 5, 31, 0, 0)},
		{"leap day", "0 0 29 2 *", utc(2025, 1, 1, 0, 0), utc(2028, 2, 29, 0, 0)},
		{"weekday filter", "0 9 * * 1", utc(2025, 3, 12, 10, 0), utc(2025, 3, 17, 9, 0)},
		{"weekday and month day both required", "0 0 13 * 5", utc(2025, 1, 1, 0, 0), utc(2025, 6, 13, 0, 0)},
		{"weekend names", "30 8 * * sat,sun", utc(2025, 3, 10, 0, 0), utc(2025, 3, 15, 8, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustParse(t, tt.expr)
			got := e.NextOccurrence(tt.base, farEnd)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%s) = %s, want %s", tt.base, got, tt.want)
			}
			if !got.After(tt.base) {
				t.Errorf("result %s not after base %s", got, tt.base)
			}
			if !e.Matches(got) {
				t.Errorf("result %s does not match %q", got, tt.expr)
			}
		})
	}
}

func TestNextOccurrence_ImpossibleDateStopsAtEnd(t *testing.T) {
	e := mustParse(t, "0 0 31 2 *")
	base := utc(2025, 1, 1, 0, 0)
	end := utc(2035, 1, 1, 0, 0)

	if got := e.NextOccurrence(base, end); !got.Equal(end) {
		t.Errorf("NextOccurrence = %s, want end %s", got, end)
	}

	e = mustParse(t, "0 0 30,31 2 *")
	if got := e.NextOccurrence(base, end); !got.Equal(end) {
		t.Errorf("NextOccurrence = %s, want end %s", got, end)
	}
}

func TestNextOccurrence_EndBounds(t *testing.T) {
	e := mustParse(t, "0 12 * * *")
	base := utc(2025, 3, 10, 0, 0)

	// Occurrence exactly at end is excluded.
	end := utc(2025, 3, 10, 12, 0)
	if got := e.NextOccurrence(base, end); !got.Equal(end) {
		t.Errorf("got %s, want end", got)
	}

	end = end.Add(time.Nanosecond)
	if got := e.NextOccurrence(base, end); !got.Equal(utc(2025, 3, 10, 12, 0)) {
		t.Errorf("got %s, want 12:00", got)
	}

	// Base at or past end returns end.
	if got := e.NextOccurrence(end, end); !got.Equal(end) {
		t.Errorf("base == end: got %s", got)
	}

	var zero Expression
	if got := zero.NextOccurrence(base, end); !got.Equal(end) {
		t.Errorf("zero expression: got %s", got)
	}
}

func TestNextOccurrence_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	e := mustParse(t, "0 9 * * *")
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)
	got := e.NextOccurrence(base, base.AddDate(1, 0, 0))
	want := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)
	if !got.Equal(want) || got.Hour() != 9 {
		t.Errorf("got %s, want %s", got, want)
	}
}

// robfig/cron uses AND semantics whenever one of the day fields is "*",
// which lets it serve as an independent reference.
func TestNextOccurrence_MatchesRobfig(t *testing.T) {
	expressions := []string{
		"* * * * *",
		"*/15 * * * *",
		"0 9 * * 1-5",
		"30 2 29 2 *",
		"0 0 31 * *",
		"5,35 */6 * 1-6 *",
		"0 12 * JAN,JUL SUN",
		"0 0 1-7 * *",
		"45 23 * * 6",
		"0 4 15 * *",
	}
	bases := []time.Time{
		utc(2024, 2, 28, 23, 59),
		utc(2025, 1, 1, 0, 0),
		utc(2025, 6, 30, 13, 37),
		utc(2025, 12, 31, 23, 59),
	}
	end := utc(2040, 1, 1, 0, 0)

	for _, text := range expressions {
		ours := mustParse(t, text)
		theirs, err := cron.ParseStandard(text)
		if err != nil {
			t.Fatalf("robfig ParseStandard(%q): %v", text, err)
		}
		for _, base := range bases {
			current := base
			for i := 0; i < 25; i++ {
				want := theirs.Next(current)
				got := ours.NextOccurrence(current, end)
				if !got.Equal(want) {
					t.Fatalf("%q from %s: got %s, want %s", text, current, got, want)
				}
				current = got
			}
		}
	}
}

func TestOccurrences(t *testing.T) {
	e := mustParse(t, "0 */6 * * *")
	base := utc(2025, 3, 10, 0, 0)
	end := utc(2025, 3, 11, 6, 0)

	want := []time.Time{
		utc(2025, 3, 10, 6, 0),
		utc(2025, 3, 10, 12, 0),
		utc(2025, 3, 10, 18, 0),
		utc(2025, 3, 11, 0, 0),
	}

	seq := e.Occurrences(base, end)
	first := slices.Collect(seq)
	if !slices.EqualFunc(first, want, time.Time.Equal) {
		t.Fatalf("Occurrences = %v, want %v", first, want)
	}

	second := slices.Collect(seq)
	if !slices.EqualFunc(second, first, time.Time.Equal) {
		t.Errorf("second iteration = %v, want %v", second, first)
	}

	var n int
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("early break yielded %d values", n)
	}
}

func TestOccurrences_EmptyWhenNothingBeforeEnd(t *testing.T) {
	e := mustParse(t, "0 0 31 2 *")
	if got := slices.Collect(e.Occurrences(utc(2025, 1, 1, 0, 0), utc(2030, 1, 1, 0, 0))); len(got) != 0 {
		t.Errorf("expected no occurrences, got %v", got)
	}
}
