package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthamster/hamster-sub000/internal/logger"
	"github.com/projecthamster/hamster-sub000/pkg/fact"
	"github.com/projecthamster/hamster-sub000/pkg/hday"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// =============================================================================
// Fixtures
// =============================================================================

var testDay = hday.Date{Year: 2024, Month: time.January, Day: 15}

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 15, hh, mm, 0, 0, time.UTC)
}

// testClock is the store clock; tests move it by assigning to now.
type testClock struct {
	now time.Time
}

func newTestStore(t *testing.T) (*FactStore, *testClock) {
	return newTestStoreWithDayStart(t, 0)
}

func newTestStoreWithDayStart(t *testing.T, dayStart time.Duration) (*FactStore, *testClock) {
	t.Helper()
	clock := &testClock{now: at(18, 0)}
	settings := Settings{
		Calendar:      hday.NewCalendar(dayStart, time.UTC),
		UnsortedLabel: "Unsorted",
		Now:           func() time.Time { return clock.now },
	}
	fs, err := Open(":memory:", settings, logger.Nop())
	require.NoError(t, err, "Failed to create store")
	t.Cleanup(func() { fs.Close() })
	return fs, clock
}

// add parses text relative to testDay and stores it.
func add(t *testing.T, fs *FactStore, text string) *fact.Fact {
	t.Helper()
	f, err := fs.AddFact(fs.ParseFact(text, testDay))
	require.NoError(t, err, text)
	require.NotNil(t, f)
	return f
}

func allFacts(t *testing.T, fs *FactStore) []fact.Fact {
	t.Helper()
	facts, err := fs.GetFacts(timerange.Range{}, "")
	require.NoError(t, err)
	return facts
}

// timeline renders every fact as "HH:MM-HH:MM activity" in start order.
func timeline(t *testing.T, fs *FactStore) []string {
	t.Helper()
	var out []string
	for _, f := range allFacts(t, fs) {
		end := ""
		if !f.Range.End.IsZero() {
			end = f.Range.End.Format("15:04")
		}
		out = append(out, fmt.Sprintf("%s-%s %s", f.Range.Start.Format("15:04"), end, f.Activity))
	}
	return out
}

func openFacts(t *testing.T, fs *FactStore) int {
	t.Helper()
	n := 0
	for _, f := range allFacts(t, fs) {
		if f.IsOpen() {
			n++
		}
	}
	return n
}

// =============================================================================
// Store Initialization Tests
// =============================================================================

func TestStoreCreation(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NotNil(t, fs)
	assert.NotEmpty(t, fs.ID())
	assert.Empty(t, allFacts(t, fs))

	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: UnsortedID, Name: "Unsorted"}}, cats)
}

// =============================================================================
// Fact CRUD Tests
// =============================================================================

func TestAddAndGetFact(t *testing.T) {
	fs, _ := newTestStore(t)

	added := add(t, fs, "09:00-10:30 writing@work,, chapter two #book #draft")
	assert.NotZero(t, added.ID)

	got, err := fs.GetFact(added.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "writing", got.Activity)
	assert.Equal(t, "work", got.Category)
	assert.Equal(t, "chapter two", got.Description)
	assert.Equal(t, []string{"book", "draft"}, got.Tags)
	assert.Equal(t, at(9, 0), got.Range.Start)
	assert.Equal(t, at(10, 30), got.Range.End)
	assert.Equal(t, testDay, got.Date(fs.Calendar()))

	missing, err := fs.GetFact(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddFactUnsorted(t *testing.T) {
	fs, _ := newTestStore(t)

	f := add(t, fs, "09:00-10:00 reading")
	assert.Equal(t, "", f.Category)

	act, err := fs.GetActivityByName("reading", AnyCategory, false)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, UnsortedID, act.CategoryID)
	assert.Equal(t, "Unsorted", act.Category)

	// the unsorted label is the unsorted category, not a new one
	f = add(t, fs, "10:00-11:00 reading@unsorted")
	assert.Equal(t, "", f.Category)
	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestAddFactValidation(t *testing.T) {
	fs, _ := newTestStore(t)

	_, err := fs.AddFact(fact.New("coding", "", "", timerange.Range{}))
	assert.ErrorIs(t, err, fact.ErrMissingStartTime)

	_, err = fs.AddFact(fact.New("", "", "", timerange.New(at(9, 0), time.Time{})))
	assert.ErrorIs(t, err, fact.ErrMissingActivity)

	_, err = fs.AddFact(fact.New("coding", "a, b", "", timerange.New(at(9, 0), time.Time{})))
	assert.ErrorIs(t, err, fact.ErrForbiddenCharacter)

	assert.Empty(t, allFacts(t, fs), "validation failures must not write")
	acts, err := fs.GetActivities("")
	require.NoError(t, err)
	assert.Empty(t, acts)
}

func TestAddFactNegativeDuration(t *testing.T) {
	fs, _ := newTestStore(t)

	f := fs.ParseFact("23:50-00:20 late night", testDay)
	_, err := fs.AddFact(f)
	require.ErrorIs(t, err, fact.ErrNegativeDuration)

	var ferr *fact.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, at(23, 50), ferr.Suggested.Start)
	assert.Equal(t, at(0, 20).AddDate(0, 0, 1), ferr.Suggested.End)
	assert.Equal(t, "23:50 - 2024-01-16 00:20", ferr.SuggestedText)

	assert.Empty(t, allFacts(t, fs))

	// the suggestion is accepted as is
	f.Range = ferr.Suggested
	stored, err := fs.AddFact(f)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, stored.Delta(at(0, 0)))
}

func TestUpdateFact(t *testing.T) {
	fs, _ := newTestStore(t)

	old := add(t, fs, "09:00-10:00 writing@work #draft")
	updated, err := fs.UpdateFact(old.ID, fs.ParseFact("09:00-11:00 editing@work,, second pass", testDay))
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, updated.ID)
	assert.Equal(t, "editing", updated.Activity)
	assert.Equal(t, "second pass", updated.Description)
	assert.Empty(t, updated.Tags)

	gone, err := fs.GetFact(old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, []string{"09:00-11:00 editing"}, timeline(t, fs))

	_, err = fs.UpdateFact(9999, fs.ParseFact("12:00-13:00 x", testDay))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, allFacts(t, fs), 1, "failed update must roll back")
}

func TestRemoveFact(t *testing.T) {
	fs, _ := newTestStore(t)

	f := add(t, fs, "09:00-10:00 writing")
	require.NoError(t, fs.RemoveFact(f.ID))
	assert.Empty(t, allFacts(t, fs))

	assert.ErrorIs(t, fs.RemoveFact(f.ID), ErrNotFound)
}

func TestGetFactsByDaysAndToday(t *testing.T) {
	fs, clock := newTestStore(t)

	add(t, fs, "2024-01-14 09:00-10:00 yesterday")
	add(t, fs, "09:00-10:00 today")
	add(t, fs, "2024-01-16 09:00-10:00 tomorrow")

	facts, err := fs.GetFactsByDays(testDay, hday.Date{}, "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "today", facts[0].Activity)

	facts, err = fs.GetFactsByDays(testDay.AddDays(-1), testDay, "")
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	clock.now = time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	facts, err = fs.GetTodaysFacts()
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "tomorrow", facts[0].Activity)
}

func TestHamsterDayBoundary(t *testing.T) {
	fs, _ := newTestStoreWithDayStart(t, 5*time.Hour+30*time.Minute)

	// before the day start: next civil date, same hamster day
	f := add(t, fs, "02:00-03:00 late night")
	assert.Equal(t, time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC), f.Range.Start)
	assert.Equal(t, testDay, f.Date(fs.Calendar()))

	add(t, fs, "2024-01-16 06:00-07:00 next morning")

	facts, err := fs.GetFactsByDays(testDay, testDay, "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "late night", facts[0].Activity)
}

func TestParseAndSerializeFact(t *testing.T) {
	fs, _ := newTestStore(t)

	f := fs.ParseFact("09:00-10:00 writing@work,, notes #a", testDay)
	assert.Equal(t, "09:00 - 10:00 writing@work,, notes #a", fs.SerializeFact(f, testDay))
	assert.NoError(t, fs.CheckFact(f, testDay))
}

// =============================================================================
// Notification Tests
// =============================================================================

func TestNotifications(t *testing.T) {
	fs, _ := newTestStore(t)

	var got []Notification
	unsubscribe := fs.Subscribe(func(n Notification) { got = append(got, n) })

	add(t, fs, "09:00-10:00 writing@work #draft")
	require.Len(t, got, 1)
	assert.True(t, got[0].Changes.Has(FactsChanged|ActivitiesChanged|TagsChanged))
	assert.Equal(t, fs.ID(), got[0].Origin)

	// same activity and tag: only facts change
	add(t, fs, "10:00-11:00 writing@work #draft")
	require.Len(t, got, 2)
	assert.Equal(t, FactsChanged, got[1].Changes)

	// failures do not notify
	_, err := fs.AddFact(fact.New("", "", "", timerange.New(at(12, 0), time.Time{})))
	require.Error(t, err)
	assert.Len(t, got, 2)

	fs.Invalidate()
	require.Len(t, got, 3)
	assert.Equal(t, AllChanged, got[2].Changes)

	unsubscribe()
	add(t, fs, "12:00-13:00 reading")
	assert.Len(t, got, 3)
}

func TestCommitHooks(t *testing.T) {
	fs, _ := newTestStore(t)

	commits := 0
	remove := fs.OnCommit(func() { commits++ })

	add(t, fs, "09:00-10:00 writing@work")
	assert.Equal(t, 1, commits)

	// reads and failed writes commit nothing
	_, err := fs.GetFacts(timerange.Range{}, "")
	require.NoError(t, err)
	_, err = fs.AddFact(fact.New("", "", "", timerange.New(at(12, 0), time.Time{})))
	require.Error(t, err)
	require.ErrorIs(t, fs.RemoveFact(999), ErrNotFound)
	assert.Equal(t, 1, commits)

	fs.Invalidate()
	assert.Equal(t, 2, commits, "clearing the index writes the file")

	// hooks have run by the time a write returns
	fs.Exclusive(func() { assert.Equal(t, 2, commits) })

	remove()
	add(t, fs, "10:00-11:00 reading")
	assert.Equal(t, 2, commits)
}
