package timerange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/projecthamster/hamster-sub000/pkg/hday"
)

// Position selects where in the text a range is searched for.
type Position int

const (
	// Exact requires the whole text to be a range.
	Exact Position = iota
	// Head requires the range at the very beginning, followed by whitespace.
	Head
	// Tail requires the range at the very end, preceded by whitespace.
	Tail
)

const (
	datePat = `\d{4}-\d{2}-\d{2}`
	timePat = `\d{1,2}:\d{2}`
	relPat  = `[-+]\d{1,3}`

	// Alternatives are tried in order, so a start-end range wins over a
	// bare relative number.
	rangeAlt = `(?:(?P<sdate>` + datePat + `)\s+)?(?P<stime>` + timePat + `)` +
		`(?:\s*-\s*(?:(?P<edate>` + datePat + `)\s+)?(?P<etime>` + timePat + `))?` +
		`|(?P<srel>` + relPat + `)(?:\s+(?P<erel>` + relPat + `))?` +
		`|(?P<day>` + datePat + `)` +
		`|(?P<none>--)`
)

var (
	exactRe = regexp.MustCompile(`^\s*(?:` + rangeAlt + `)\s*$`)
	headRe  = regexp.MustCompile(`^\s*(?:` + rangeAlt + `)(?:\s+|$)`)
	tailRe  = regexp.MustCompile(`(?:^|\s+)(?:` + rangeAlt + `)\s*$`)
)

// Parser turns text into ranges using the hamster-day rules of its Calendar.
type Parser struct {
	Calendar hday.Calendar
}

// NewParser returns a Parser for the given calendar.
func NewParser(cal hday.Calendar) Parser {
	return Parser{Calendar: cal}
}

// Parse extracts a range from text at the given position and returns it with
// the rest of the text.
//
// Bare times land on defaultDay (a zero defaultDay means the hamster day of
// now); an end without a date lands on the hamster day of the start. Relative
// offsets are minutes from now. "--" is an explicit empty range: the result
// is a zero Range but the remainder no longer contains it. When nothing
// matches the result is a zero Range and the untouched text; this is not an
// error.
func (p Parser) Parse(text string, pos Position, defaultDay hday.Date, now time.Time) (Range, string) {
	var re *regexp.Regexp
	switch pos {
	case Head:
		re = headRe
	case Tail:
		re = tailRe
	default:
		re = exactRe
	}

	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Range{}, text
	}
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		groups[name] = text[loc[2*i]:loc[2*i+1]]
	}

	r, ok := p.build(groups, defaultDay, now)
	if !ok {
		return Range{}, text
	}

	var rest string
	switch pos {
	case Head:
		rest = text[loc[1]:]
	case Tail:
		rest = text[:loc[0]]
	}
	return r, strings.TrimSpace(rest)
}

func (p Parser) build(g map[string]string, defaultDay hday.Date, now time.Time) (Range, bool) {
	cal := p.Calendar
	if defaultDay.IsZero() {
		defaultDay = cal.Today(now)
	}

	switch {
	case g["none"] != "":
		return Range{}, true

	case g["day"] != "":
		d, err := hday.ParseDate(g["day"])
		if err != nil {
			return Range{}, false
		}
		return Range{Start: cal.StartOf(d), End: cal.EndOf(d)}, true

	case g["srel"] != "":
		ref := now.In(cal.Loc()).Truncate(time.Minute)
		start, ok := relative(ref, g["srel"])
		if !ok {
			return Range{}, false
		}
		r := Range{Start: start}
		if g["erel"] != "" {
			if r.End, ok = relative(ref, g["erel"]); !ok {
				return Range{}, false
			}
		}
		return r, true
	}

	start, ok := p.datetime(g["sdate"], g["stime"], defaultDay)
	if !ok {
		return Range{}, false
	}
	r := Range{Start: start}
	if g["etime"] != "" {
		if r.End, ok = p.datetime(g["edate"], g["etime"], cal.Of(start)); !ok {
			return Range{}, false
		}
	}
	return r, true
}

// datetime resolves an optional civil date and a clock time. Without a date
// the clock is placed on the hamster day day.
func (p Parser) datetime(date, clock string, day hday.Date) (time.Time, bool) {
	c, err := hday.ParseClock(clock)
	if err != nil {
		return time.Time{}, false
	}
	if date == "" {
		return p.Calendar.DateFor(day, c), true
	}
	d, err := hday.ParseDate(date)
	if err != nil {
		return time.Time{}, false
	}
	return d.At(c, p.Calendar.Loc()), true
}

func relative(ref time.Time, s string) (time.Time, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return time.Time{}, false
	}
	return ref.Add(time.Duration(n) * time.Minute), true
}

// Format renders r so that Parse(Format(r, day), Exact, day, now) gives r
// back for minute-precise ranges. The start date is written only when the
// start is not on defaultDay; the end date only when the end falls on a
// different hamster day than the start.
func (p Parser) Format(r Range, defaultDay hday.Date) string {
	if r.Start.IsZero() {
		return ""
	}
	loc := p.Calendar.Loc()
	start := r.Start.In(loc)
	startDay := p.Calendar.Of(start)

	var b strings.Builder
	if startDay != defaultDay {
		b.WriteString(start.Format(hday.DateLayout + " "))
	}
	b.WriteString(start.Format("15:04"))

	if !r.End.IsZero() {
		end := r.End.In(loc)
		b.WriteString(" - ")
		if p.Calendar.Of(end) != startDay {
			b.WriteString(end.Format(hday.DateLayout + " 15:04"))
		} else {
			b.WriteString(end.Format("15:04"))
		}
	}
	return b.String()
}
