package schema

import "time"

// Interval is the closed set of rollup granularities. Every switch over an
// Interval covers all four values and panics on anything else, so adding a
// granularity is a compile-visible change rather than a stray string.
type Interval string

// All rollup intervals supported.
const (
	IntervalDay      Interval = "day"
	IntervalWeek     Interval = "week"
	IntervalMonth    Interval = "month"
	IntervalLifetime Interval = "lifetime"
)

// PeriodIntervals lists the intervals that anchor a closed [start, end]
// period, in their dependency order.
var PeriodIntervals = []Interval{IntervalDay, IntervalWeek, IntervalMonth}

// ValidIntervals lists every interval, for CLI validation.
var ValidIntervals = map[Interval]struct{}{
	IntervalDay:      {},
	IntervalWeek:     {},
	IntervalMonth:    {},
	IntervalLifetime: {},
}

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	_, ok := ValidIntervals[i]
	return ok
}

// PeriodEnd returns the inclusive end of the period anchored at start:
// 23:59:59 of the same day, of start+6 days, or of the last day of start's
// month. Lifetime has no period boundary and returns the zero time.
func (i Interval) PeriodEnd(start time.Time) time.Time {
	switch i {
	case IntervalDay:
		return endOfDay(start)
	case IntervalWeek:
		return endOfDay(start.AddDate(0, 0, 6))
	case IntervalMonth:
		firstOfNext := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()).AddDate(0, 1, 0)
		return endOfDay(firstOfNext.AddDate(0, 0, -1))
	case IntervalLifetime:
		return time.Time{}
	default:
		panic("unknown interval: " + string(i))
	}
}

// Open reports whether the period anchored at start is still in progress at
// now. Open periods are replaced in place by the rollup engine; closed
// periods are write-once.
func (i Interval) Open(start, now time.Time) bool {
	switch i {
	case IntervalDay:
		return sameDay(start, now)
	case IntervalWeek:
		sy, sw := start.ISOWeek()
		ny, nw := now.ISOWeek()
		return sy == ny && sw == nw
	case IntervalMonth:
		return start.Year() == now.Year() && start.Month() == now.Month()
	case IntervalLifetime:
		return true
	default:
		panic("unknown interval: " + string(i))
	}
}

// PeriodStart truncates t to the start of its period: midnight, the Monday
// of its ISO week, or the first of its month. Lifetime rows have no anchor
// and return the zero time.
func (i Interval) PeriodStart(t time.Time) time.Time {
	switch i {
	case IntervalDay:
		return DayStart(t)
	case IntervalWeek:
		return WeekStart(t)
	case IntervalMonth:
		return MonthStart(t)
	case IntervalLifetime:
		return time.Time{}
	default:
		panic("unknown interval: " + string(i))
	}
}

// DayStart returns midnight of t's calendar day.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return d.AddDate(0, 0, -offset)
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
