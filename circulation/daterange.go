package circulation

import (
	"fmt"
	"time"
)

// DateISOFormat is the wire format for dates in queries and payloads.
const DateISOFormat = "2006-01-02"

// DayOf truncates t to midnight UTC. All dates handled by the engine are
// normalized through this, so map keys and comparisons are exact.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is a closed interval of days, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalizes both bounds to midnight UTC and validates ordering.
func NewDateRange(start time.Time, end time.Time) (DateRange, error) {
	rng := DateRange{Start: DayOf(start), End: DayOf(end)}

	if rng.End.Before(rng.Start) {
		return DateRange{}, fmt.Errorf("%w: end %s before start %s",
			ErrInvalidDateRange, rng.End.Format(DateISOFormat), rng.Start.Format(DateISOFormat))
	}

	return rng, nil
}

// RangeFrom builds a range of the given number of days starting at start.
// A length of 1 yields the single-day range [start, start].
func RangeFrom(start time.Time, days int) (DateRange, error) {
	if days < 1 {
		return DateRange{}, fmt.Errorf("%w: range length must be at least one day", ErrInvalidDateRange)
	}

	day := DayOf(start)

	return DateRange{Start: day, End: day.AddDate(0, 0, days-1)}, nil
}

// Overlaps implements the inclusive overlap test: [a,b] and [c,d] overlap
// iff a <= d and c <= b.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Contains reports whether the given day (normalized) lies within the range.
func (r DateRange) Contains(day time.Time) bool {
	d := DayOf(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of days covered by the range, at least 1.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// EachDay calls fn for every day in the range in ascending order.
func (r DateRange) EachDay(fn func(day time.Time)) {
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

// String renders the range as "start..end" in ISO date format.
func (r DateRange) String() string {
	return r.Start.Format(DateISOFormat) + ".." + r.End.Format(DateISOFormat)
}
