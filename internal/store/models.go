// Package store is the fact timeline storage engine: an SQLite-backed catalog
// of activities, categories and tags, the timeline resolver that keeps facts
// from contradicting each other, and a lazily rebuilt search index.
package store

import (
	"errors"
	"time"

	"github.com/projecthamster/hamster-sub000/pkg/hday"
)

// UnsortedID is the sentinel category. It never exists as a row.
const UnsortedID int64 = -1

// AnyCategory makes activity lookups ignore the category.
const AnyCategory int64 = 0

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

// ActivityState is the soft-delete state of an activity.
type ActivityState int

const (
	Active ActivityState = iota
	Deleted
)

func (s ActivityState) String() string {
	if s == Deleted {
		return "deleted"
	}
	return "active"
}

// Activity is a named kind of work inside a category.
type Activity struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	CategoryID int64         `json:"categoryId"`
	Category   string        `json:"category"`
	State      ActivityState `json:"state"`
}

// Category groups activities.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a free-form label attached to facts. Tags with Autocomplete unset
// are hidden from suggestions but stay usable.
type Tag struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Autocomplete bool   `json:"autocomplete"`
}

// IndexState is the state of a fact's search index row.
type IndexState int

const (
	IndexInvalid IndexState = iota
	IndexValid
)

// Settings are injected at construction.
type Settings struct {
	Calendar      hday.Calendar
	UnsortedLabel string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DefaultSettings uses a midnight day start in the local zone.
func DefaultSettings() Settings {
	return Settings{
		Calendar:      hday.NewCalendar(0, time.Local),
		UnsortedLabel: "Unsorted",
	}
}

// Change is a bit set describing what a committed mutation touched.
type Change uint8

const (
	FactsChanged Change = 1 << iota
	ActivitiesChanged
	TagsChanged
	// indexChanged means only search index rows were written. It reaches
	// commit hooks but never subscribers.
	indexChanged

	AllChanged = FactsChanged | ActivitiesChanged | TagsChanged
)

// Has reports whether all bits of o are set in c.
func (c Change) Has(o Change) bool {
	return c&o == o
}

// Notification is delivered to subscribers after a mutation commits.
type Notification struct {
	Changes Change
	// Origin is the id of the FactStore that made the change.
	Origin string
}
