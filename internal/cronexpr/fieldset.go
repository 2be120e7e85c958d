package cronexpr

import (
	"math/bits"
	"strconv"
	"strings"
)

const none = -1

// FieldSet is the set of values a single field admits. Values index bits
// directly, which works because every domain fits inside 0..63.
type FieldSet struct {
	desc    Descriptor
	bits    uint64
	lowest  int
	highest int
}

// ParseField parses one field of an expression against its descriptor.
// The field is a comma separated list of terms; any bad term rejects the
// whole field.
func ParseField(d Descriptor, text string) (FieldSet, error) {
	if text == "" {
		return FieldSet{}, fieldError(ErrEmptyField, d, text)
	}

	var set uint64
	for _, term := range strings.Split(text, ",") {
		start, end, step, err := parseTerm(d, term)
		if err != nil {
			return FieldSet{}, err
		}
		for v := start; v <= end; v += step {
			set |= 1 << uint(v)
		}
	}
	return newFieldSet(d, set), nil
}

func newFieldSet(d Descriptor, set uint64) FieldSet {
	fs := FieldSet{desc: d, bits: set, lowest: none, highest: none}
	if set != 0 {
		fs.lowest = bits.TrailingZeros64(set)
		fs.highest = 63 - bits.LeadingZeros64(set)
	}
	return fs
}

// parseTerm resolves a single term to an inclusive range and a step.
func parseTerm(d Descriptor, term string) (start, end, step int, err error) {
	if term == "" {
		return 0, 0, 0, fieldError(ErrMalformed, d, term)
	}

	rangeText, stepText, hasStep := strings.Cut(term, "/")
	step = 1
	if hasStep {
		n, convErr := strconv.Atoi(stepText)
		if convErr != nil {
			return 0, 0, 0, fieldError(ErrMalformed, d, term)
		}
		// Any step wider than the domain yields only start.
		step = min(max(n, 1), d.Max-d.Min+1)
	}

	switch {
	case rangeText == "*":
		start, end = d.Min, d.Max
	case strings.Contains(rangeText, "-"):
		lo, hi, _ := strings.Cut(rangeText, "-")
		if start, err = resolveValue(d, lo, term); err != nil {
			return 0, 0, 0, err
		}
		if end, err = resolveValue(d, hi, term); err != nil {
			return 0, 0, 0, err
		}
		if start > end {
			start, end = end, start
		}
	default:
		if start, err = resolveValue(d, rangeText, term); err != nil {
			return 0, 0, 0, err
		}
		end = start
		if hasStep {
			end = d.Max
		}
	}

	if start < d.Min || start > d.Max || end > d.Max {
		return 0, 0, 0, fieldError(ErrOutOfRange, d, term)
	}
	return start, end, step, nil
}

func resolveValue(d Descriptor, text, term string) (int, error) {
	if text == "" {
		return 0, fieldError(ErrMalformed, d, term)
	}
	if isDigits(text) {
		v, err := strconv.Atoi(text)
		if err != nil {
			return 0, fieldError(ErrOutOfRange, d, term)
		}
		return v, nil
	}
	if len(d.Names) == 0 {
		return 0, fieldError(ErrMalformed, d, term)
	}
	if v, ok := d.lookup(text); ok {
		return v, nil
	}
	return 0, fieldError(ErrUnknownName, d, text)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Descriptor returns the domain this set was parsed against.
func (fs FieldSet) Descriptor() Descriptor { return fs.desc }

// IsEmpty reports whether the set admits no value. Only the zero FieldSet is empty.
func (fs FieldSet) IsEmpty() bool { return fs.bits == 0 }

// First returns the smallest admitted value.
func (fs FieldSet) First() (int, bool) {
	if fs.bits == 0 {
		return none, false
	}
	return fs.lowest, true
}

// Next returns the smallest admitted value >= start.
func (fs FieldSet) Next(start int) (int, bool) {
	if fs.bits == 0 || start > fs.highest {
		return none, false
	}
	if start <= fs.lowest {
		return fs.lowest, true
	}
	rest := fs.bits >> uint(start)
	return start + bits.TrailingZeros64(rest), true
}

// Contains reports whether v is admitted.
func (fs FieldSet) Contains(v int) bool {
	if v < 0 || v > 63 {
		return false
	}
	return fs.bits&(1<<uint(v)) != 0
}

// Values lists admitted values in ascending order.
func (fs FieldSet) Values() []int {
	var out []int
	for v := fs.lowest; v != none && v <= fs.highest; v++ {
		if fs.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Format renders the set with runs collapsed to a-b. A set covering the
// whole domain prints as "*". Unless noNames is set, fields with symbolic
// names print three-letter abbreviations.
func (fs FieldSet) Format(noNames bool) string {
	if fs.bits == 0 {
		return ""
	}
	if fs.lowest == fs.desc.Min && fs.highest == fs.desc.Max &&
		bits.OnesCount64(fs.bits) == fs.desc.Max-fs.desc.Min+1 {
		return "*"
	}

	value := func(v int) string {
		if !noNames {
			if name := fs.desc.abbrev(v); name != "" {
				return name
			}
		}
		return strconv.Itoa(v)
	}

	var parts []string
	for v := fs.lowest; v <= fs.highest; {
		if !fs.Contains(v) {
			v++
			continue
		}
		runEnd := v
		for runEnd+1 <= fs.highest && fs.Contains(runEnd+1) {
			runEnd++
		}
		if runEnd == v {
			parts = append(parts, value(v))
		} else {
			parts = append(parts, value(v)+"-"+value(runEnd))
		}
		v = runEnd + 1
	}
	return strings.Join(parts, ",")
}

func (fs FieldSet) String() string { return fs.Format(true) }
