// Package fact defines the Fact value type, its one-line textual form and the
// validation gate every fact passes before it reaches storage.
package fact

import (
	"slices"
	"strings"
	"time"

	"github.com/projecthamster/hamster-sub000/pkg/hday"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// Fact is one logged activity occurrence.
type Fact struct {
	ID          int64           `json:"id"`
	Activity    string          `json:"activity"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Range       timerange.Range `json:"range"`
}

// New builds a fact with trimmed names and deduplicated tags.
func New(activity, category, description string, r timerange.Range, tags ...string) Fact {
	f := Fact{
		Activity:    strings.TrimSpace(activity),
		Category:    strings.TrimSpace(category),
		Description: strings.TrimSpace(description),
		Range:       r,
	}
	f.AddTags(tags...)
	return f
}

// AddTags appends tags not already present, keeping insertion order.
// Matching is case-sensitive; blank names are skipped.
func (f *Fact) AddTags(tags ...string) {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(f.Tags, tag) {
			continue
		}
		f.Tags = append(f.Tags, tag)
	}
}

// Date returns the hamster day of the fact start.
func (f Fact) Date(cal hday.Calendar) hday.Date {
	return cal.Of(f.Range.Start)
}

// Delta returns the fact duration; an open fact is measured up to now.
func (f Fact) Delta(now time.Time) time.Duration {
	return f.Range.Delta(now)
}

// IsOpen reports whether the fact is still running.
func (f Fact) IsOpen() bool {
	return f.Range.IsOpen()
}

// Copy returns a deep copy of f.
func (f Fact) Copy() Fact {
	f.Tags = slices.Clone(f.Tags)
	return f
}

// SameTags reports whether f and o carry the same set of tags, ignoring order.
func (f Fact) SameTags(o Fact) bool {
	return SameTagSet(f.Tags, o.Tags)
}

// SameTagSet compares two tag lists as sets.
func SameTagSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, t := range a {
		as[t] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, t := range b {
		bs[t] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for t := range as {
		if _, ok := bs[t]; !ok {
			return false
		}
	}
	return true
}
