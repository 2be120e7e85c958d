package cronexpr

import "strings"

// FieldKind identifies one of the five positions of a schedule expression.
type FieldKind int

const (
	Minute FieldKind = iota
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

func (k FieldKind) String() string {
	switch k {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case DayOfMonth:
		return "day-of-month"
	case Month:
		return "month"
	case DayOfWeek:
		return "day-of-week"
	default:
		return "unknown"
	}
}

// Descriptor holds the static domain of a field: its bounds and, for
// month and day-of-week, the symbolic names of each value in order.
type Descriptor struct {
	Kind  FieldKind
	Min   int
	Max   int
	Names []string
}

var (
	MinuteDescriptor = Descriptor{Kind: Minute, Min: 0, Max: 59}
	HourDescriptor   = Descriptor{Kind: Hour, Min: 0, Max: 23}
	DayDescriptor    = Descriptor{Kind: DayOfMonth, Min: 1, Max: 31}
	MonthDescriptor  = Descriptor{
		Kind: Month, Min: 1, Max: 12,
		Names: []string{
			"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December",
		},
	}
	DayOfWeekDescriptor = Descriptor{
		Kind: DayOfWeek, Min: 0, Max: 6,
		Names: []string{
			"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
		},
	}
)

// descriptors is indexed by FieldKind.
var descriptors = [...]Descriptor{
	MinuteDescriptor,
	HourDescriptor,
	DayDescriptor,
	MonthDescriptor,
	DayOfWeekDescriptor,
}

// lookup resolves a case-insensitive prefix of a symbolic name. Names are
// tried in declared order, so "ma" is March rather than May.
func (d Descriptor) lookup(prefix string) (int, bool) {
	if prefix == "" {
		return 0, false
	}
	p := strings.ToLower(prefix)
	for i, name := range d.Names {
		if strings.HasPrefix(strings.ToLower(name), p) {
			return d.Min + i, true
		}
	}
	return 0, false
}

// abbrev returns the three-letter name of v, or "" when the field has no names.
func (d Descriptor) abbrev(v int) string {
	if len(d.Names) == 0 || v < d.Min || v > d.Max {
		return ""
	}
	name := d.Names[v-d.Min]
	if len(name) > 3 {
		name = name[:3]
	}
	return name
}
