// Package hday maps civil datetimes onto hamster days.
//
// A hamster day is a 24h tracking period that starts at a configurable
// time of day (for night owls, 05:30 rather than midnight). Every "which day
// does this belong to" decision in the engine goes through a Calendar.
package hday

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a civil date without time or location. Comparable with ==.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// AddDays returns d shifted by n days, normalizing month and year overflow.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// At returns the datetime at the given offset since midnight of d in loc.
// The offset is applied on the wall clock so DST shifts keep HH:MM intact.
func (d Date) At(offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	s := int((offset % time.Minute) / time.Second)
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Calendar carries the day-start setting. The zero value starts days at
// midnight in the local time zone.
type Calendar struct {
	// DayStart is the offset since civil midnight at which a hamster day begins.
	DayStart time.Duration
	Location *time.Location
}

// NewCalendar builds a Calendar. A nil loc means time.Local.
func NewCalendar(dayStart time.Duration, loc *time.Location) Calendar {
	return Calendar{DayStart: dayStart, Location: loc}
}

// Loc returns the calendar location, defaulting to time.Local.
func (c Calendar) Loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Of returns the hamster day t belongs to: the previous civil date when the
// clock time is before DayStart, the civil date otherwise.
func (c Calendar) Of(t time.Time) Date {
	t = t.In(c.Loc())
	if ClockOf(t) < c.DayStart {
		return DateOf(t).AddDays(-1)
	}
	return DateOf(t)
}

// StartOf returns the first instant of hamster day d.
func (c Calendar) StartOf(d Date) time.Time {
	return d.At(c.DayStart, c.Loc())
}

// EndOf returns the end of hamster day d, which is the start of the next one.
func (c Calendar) EndOf(d Date) time.Time {
	return c.StartOf(d.AddDays(1))
}

// Today returns the hamster day of now.
func (c Calendar) Today(now time.Time) Date {
	return c.Of(now)
}

// DateFor places a bare clock time on the hamster day d: times before
// DayStart belong to the civil date after d.
func (c Calendar) DateFor(d Date, clock time.Duration) time.Time {
	if clock < c.DayStart {
		return d.AddDays(1).At(clock, c.Loc())
	}
	return d.At(clock, c.Loc())
}

// ClockOf returns the wall-clock offset of t since its civil midnight.
func ClockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// ParseClock parses "HH:MM" (or "H:MM") into an offset since midnight.
func ParseClock(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("parse clock %q: missing ':'", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("parse clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: bad minute", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// FormatClock renders an offset since midnight as "HH:MM".
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}
