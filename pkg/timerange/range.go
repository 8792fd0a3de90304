// Package timerange holds the start/end interval of a fact and the
// free-text grammar used to type one in ("2024-01-02 09:00 - 12:30", "-15",
// "--", a lone date).
package timerange

import "time"

// Range is a time interval. A zero Start or End means the bound is absent;
// a Range with a Start and no End is open (still running).
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range from a start and an optional end.
func New(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// IsOpen reports whether the range has a start but no end.
func (r Range) IsOpen() bool {
	return !r.Start.IsZero() && r.End.IsZero()
}

// Delta returns End-Start, or now-Start for an open range.
func (r Range) Delta(now time.Time) time.Duration {
	if r.Start.IsZero() {
		return 0
	}
	if r.End.IsZero() {
		return now.Sub(r.Start)
	}
	return r.End.Sub(r.Start)
}

// Equal compares both bounds as instants.
func (r Range) Equal(o Range) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}
