package fact

import (
	"strings"
	"time"

	"github.com/projecthamster/hamster-sub000/pkg/hday"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// Separator between activity/category and description. A second one
// before the tags acts as the tag barrier.
const Separator = ",,"

// Parse reads the one-line form
//
//	[date] start[-end] activity[@category][,, description][,,] {#tag}
//
// Tags are the run of #words at the very end. When there are two or more
// separators, tags are only read after the last one, so a description may
// hold '#' characters.
func Parse(text string, p timerange.Parser, defaultDay hday.Date, now time.Time) Fact {
	var f Fact
	r, rest := p.Parse(strings.TrimSpace(text), timerange.Head, defaultDay, now)
	f.Range = r

	segs := strings.Split(rest, Separator)
	head := segs[0]
	var desc string
	var tags []string

	switch n := len(segs); n {
	case 1:
		head, tags = splitTrailingTags(head)
	case 2:
		desc, tags = splitTrailingTags(segs[1])
	default:
		zone, zoneTags := splitTrailingTags(segs[n-1])
		parts := segs[1 : n-1]
		if strings.TrimSpace(zone) != "" {
			parts = append(parts[:len(parts):len(parts)], zone)
		}
		desc = strings.Join(parts, Separator)
		tags = zoneTags
	}

	activity, category := head, ""
	if i := strings.LastIndex(head, "@"); i >= 0 {
		activity, category = head[:i], head[i+1:]
	}
	f.Activity = strings.TrimSpace(activity)
	f.Category = strings.TrimSpace(category)
	f.Description = strings.TrimSpace(desc)
	f.AddTags(tags...)
	return f
}

// splitTrailingTags peels #tag words off the end of s and returns what is
// left (right-trimmed) and the tags in their original order.
func splitTrailingTags(s string) (string, []string) {
	var tags []string
	rest := strings.TrimRight(s, " \t")
	for {
		i := strings.LastIndexAny(rest, " \t")
		word := rest[i+1:]
		if !isTagWord(word) {
			break
		}
		tags = append([]string{word[1:]}, tags...)
		if i < 0 {
			rest = ""
			break
		}
		rest = strings.TrimRight(rest[:i], " \t")
	}
	return rest, tags
}

func isTagWord(w string) bool {
	if len(w) < 2 || w[0] != '#' {
		return false
	}
	return !strings.ContainsAny(w[1:], "#, \t")
}

// Serialize renders f in the form read by Parse. The range is written the
// way Parser.Format does relative to defaultDay.
func Serialize(f Fact, p timerange.Parser, defaultDay hday.Date) string {
	var b strings.Builder
	b.WriteString(f.Activity)
	if f.Category != "" {
		b.WriteString("@" + f.Category)
	}
	if f.Description != "" {
		b.WriteString(Separator + " " + f.Description)
	}
	if strings.Contains(f.Activity+f.Category+f.Description, "#") {
		b.WriteString(Separator + " ")
	}
	for _, tag := range f.Tags {
		b.WriteString(" #" + tag)
	}
	name := strings.TrimSpace(b.String())

	rng := p.Format(f.Range, defaultDay)
	if rng == "" {
		// keep a leading time-looking activity from being read as a range
		if r, rest := p.Parse(name, timerange.Head, defaultDay, time.Now()); !r.IsZero() || rest != name {
			return "-- " + name
		}
		return name
	}
	if name == "" {
		return rng
	}
	return rng + " " + name
}

// Check is the validation gate. It never touches storage.
func Check(f Fact, p timerange.Parser, defaultDay hday.Date) error {
	if f.Range.Start.IsZero() {
		return ErrMissingStartTime
	}
	if !f.Range.End.IsZero() && f.Range.End.Before(f.Range.Start) {
		suggested := timerange.Range{Start: f.Range.Start, End: f.Range.End.AddDate(0, 0, 1)}
		return negativeDuration(suggested, p.Format(suggested, defaultDay))
	}
	if strings.TrimSpace(f.Activity) == "" {
		return ErrMissingActivity
	}
	return CheckCategory(f.Category)
}

// CheckCategory rejects category names the fact grammar cannot carry.
func CheckCategory(name string) error {
	if strings.Contains(name, ",") {
		return forbiddenComma(name)
	}
	return nil
}
