package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthamster/hamster-sub000/pkg/fact"
)

func categoryID(t *testing.T, fs *FactStore, name string) int64 {
	t.Helper()
	id, err := fs.AddCategory(name)
	require.NoError(t, err)
	return id
}

func activityByName(t *testing.T, fs *FactStore, name string, categoryID int64) *Activity {
	t.Helper()
	a, err := fs.GetActivityByName(name, categoryID, false)
	require.NoError(t, err)
	require.NotNil(t, a, name)
	return a
}

func activityNames(acts []Activity) []string {
	names := make([]string, len(acts))
	for i, a := range acts {
		names[i] = a.Name
	}
	return names
}

// =============================================================================
// Categories
// =============================================================================

func TestAddCategory(t *testing.T) {
	fs, _ := newTestStore(t)

	work := categoryID(t, fs, "work")
	assert.Positive(t, work)
	assert.Equal(t, work, categoryID(t, fs, "Work"), "lookup is case-insensitive")
	assert.Equal(t, UnsortedID, categoryID(t, fs, "unsorted"))
	assert.Equal(t, UnsortedID, categoryID(t, fs, ""))

	_, err := fs.AddCategory("a, b")
	assert.ErrorIs(t, err, fact.ErrForbiddenCharacter)

	categoryID(t, fs, "home")
	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, []Category{
		{ID: cats[0].ID, Name: "home"},
		{ID: work, Name: "work"},
		{ID: UnsortedID, Name: "Unsorted"},
	}, cats)
}

func TestUpdateCategory(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	work := categoryID(t, fs, "work")

	require.NoError(t, fs.UpdateCategory(work, "job"))
	facts := allFacts(t, fs)
	require.Len(t, facts, 1)
	assert.Equal(t, "job", facts[0].Category)

	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, "job", cats[0].Name)

	assert.ErrorIs(t, fs.UpdateCategory(9999, "x"), ErrNotFound)
	assert.NoError(t, fs.UpdateCategory(UnsortedID, "x"), "unsorted is not renamed")
}

func TestRemoveCategory(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	work := categoryID(t, fs, "work")

	require.NoError(t, fs.RemoveCategory(work))

	facts := allFacts(t, fs)
	require.Len(t, facts, 1)
	assert.Equal(t, "", facts[0].Category)

	a := activityByName(t, fs, "writing", AnyCategory)
	assert.Equal(t, UnsortedID, a.CategoryID)

	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: UnsortedID, Name: "Unsorted"}}, cats)

	assert.NoError(t, fs.RemoveCategory(UnsortedID))
	assert.ErrorIs(t, fs.RemoveCategory(work), ErrNotFound)
}

// =============================================================================
// Activities
// =============================================================================

func TestAddActivity(t *testing.T) {
	fs, _ := newTestStore(t)

	a, err := fs.AddActivity("idea", AnyCategory)
	require.NoError(t, err)
	assert.Equal(t, UnsortedID, a.CategoryID)
	assert.Equal(t, Active, a.State)

	again, err := fs.AddActivity("Idea", UnsortedID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = fs.AddActivity("idea", 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.AddActivity("  ", AnyCategory)
	assert.ErrorIs(t, err, fact.ErrMissingActivity)
}

func TestActivitySoftDeleteAndResurrect(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	work := categoryID(t, fs, "work")
	writing := activityByName(t, fs, "writing", work)

	require.NoError(t, fs.RemoveActivity(writing.ID))

	deleted := activityByName(t, fs, "writing", work)
	assert.Equal(t, Deleted, deleted.State)

	acts, err := fs.GetActivities("")
	require.NoError(t, err)
	assert.Empty(t, acts, "deleted activities are not suggested")
	acts, err = fs.GetCategoryActivities(work)
	require.NoError(t, err)
	assert.Empty(t, acts)

	// the fact keeps its activity
	assert.Equal(t, "writing", allFacts(t, fs)[0].Activity)

	// naming it in a new fact brings it back, in unsorted
	f := add(t, fs, "10:00-11:00 writing@work")
	back := activityByName(t, fs, "writing", AnyCategory)
	assert.Equal(t, writing.ID, back.ID)
	assert.Equal(t, Active, back.State)
	assert.Equal(t, UnsortedID, back.CategoryID)
	assert.Equal(t, "", f.Category)

	missing, err := fs.GetActivityByName("writing", work, false)
	require.NoError(t, err)
	assert.Nil(t, missing, "no longer in work")
}

func TestGetActivityByNameResurrect(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	work := categoryID(t, fs, "work")
	writing := activityByName(t, fs, "writing", AnyCategory)
	require.NoError(t, fs.RemoveActivity(writing.ID))

	a, err := fs.GetActivityByName("writing", work, true)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, writing.ID, a.ID)
	assert.Equal(t, Active, a.State)
	assert.Equal(t, UnsortedID, a.CategoryID, "resurrection always lands in unsorted")

	missing, err := fs.GetActivityByName("nothing", AnyCategory, true)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActivityHardDelete(t *testing.T) {
	fs, _ := newTestStore(t)

	a, err := fs.AddActivity("idea", AnyCategory)
	require.NoError(t, err)

	got, err := fs.GetActivity(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, fs.RemoveActivity(a.ID))
	got, err = fs.GetActivity(a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, fs.RemoveActivity(a.ID), ErrNotFound)
}

func TestChangeCategoryMoves(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	home := categoryID(t, fs, "home")
	writing := activityByName(t, fs, "writing", AnyCategory)

	require.NoError(t, fs.ChangeCategory(writing.ID, home))
	moved, err := fs.GetActivity(writing.ID)
	require.NoError(t, err)
	assert.Equal(t, home, moved.CategoryID)
	assert.Equal(t, "home", allFacts(t, fs)[0].Category)

	assert.ErrorIs(t, fs.ChangeCategory(writing.ID, 9999), ErrNotFound)
	assert.ErrorIs(t, fs.ChangeCategory(9999, home), ErrNotFound)
}

func TestChangeCategoryMerges(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	add(t, fs, "10:00-11:00 writing@home")
	work := categoryID(t, fs, "work")
	home := categoryID(t, fs, "home")
	fromWork := activityByName(t, fs, "writing", work)
	fromHome := activityByName(t, fs, "writing", home)

	require.NoError(t, fs.ChangeCategory(fromWork.ID, home))

	gone, err := fs.GetActivity(fromWork.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "the moved duplicate is merged away")

	for _, f := range allFacts(t, fs) {
		assert.Equal(t, "home", f.Category)
	}
	acts, err := fs.GetCategoryActivities(home)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, fromHome.ID, acts[0].ID)

	acts, err = fs.GetCategoryActivities(work)
	require.NoError(t, err)
	assert.Empty(t, acts)
}

func TestUpdateActivity(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writng@work")
	home := categoryID(t, fs, "home")
	a := activityByName(t, fs, "writng", AnyCategory)

	require.NoError(t, fs.UpdateActivity(a.ID, "writing", home))

	f := allFacts(t, fs)[0]
	assert.Equal(t, "writing", f.Activity)
	assert.Equal(t, "home", f.Category)

	assert.ErrorIs(t, fs.UpdateActivity(9999, "x", home), ErrNotFound)
	assert.ErrorIs(t, fs.UpdateActivity(a.ID, "", home), fact.ErrMissingActivity)
}

func TestGetActivitiesOrdering(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "2024-01-14 09:00-10:00 gamma")
	add(t, fs, "09:00-10:00 alpha")
	add(t, fs, "10:00-11:00 beta")
	_, err := fs.AddActivity("delta", AnyCategory)
	require.NoError(t, err)

	acts, err := fs.GetActivities("")
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "alpha", "gamma", "delta"}, activityNames(acts))

	acts, err = fs.GetActivities("MM")
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, activityNames(acts))
}

// =============================================================================
// Tags
// =============================================================================

type tagView struct {
	name string
	auto bool
}

func tagViews(t *testing.T, fs *FactStore) []tagView {
	t.Helper()
	tags, err := fs.GetTags(false)
	require.NoError(t, err)
	out := make([]tagView, len(tags))
	for i, tag := range tags {
		out[i] = tagView{tag.Name, tag.Autocomplete}
	}
	return out
}

func TestTagAutocompleteAndGC(t *testing.T) {
	fs, _ := newTestStore(t)

	f := add(t, fs, "09:00-10:00 writing #book #draft")
	require.NoError(t, fs.SyncAutocomplete([]string{"book", "idea"}))

	// draft is hidden but still used
	assert.Equal(t, []tagView{{"book", true}, {"draft", false}, {"idea", true}}, tagViews(t, fs))

	suggested, err := fs.GetTags(true)
	require.NoError(t, err)
	require.Len(t, suggested, 2)

	require.NoError(t, fs.RemoveFact(f.ID))
	assert.Equal(t, []tagView{{"book", true}, {"idea", true}}, tagViews(t, fs))

	require.NoError(t, fs.SyncAutocomplete([]string{"idea"}))
	assert.Equal(t, []tagView{{"idea", true}}, tagViews(t, fs))

	add(t, fs, "10:00-11:00 reading #book")
	require.NoError(t, fs.SyncAutocomplete(nil))
	assert.Equal(t, []tagView{{"book", false}}, tagViews(t, fs))

	// naming a hidden tag shows it again
	add(t, fs, "11:00-12:00 reading #book")
	assert.Equal(t, []tagView{{"book", true}}, tagViews(t, fs))
}

func TestResolveTagIDs(t *testing.T) {
	fs, _ := newTestStore(t)

	tags, err := fs.ResolveTagIDs([]string{"a", "a", " b ", ""})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].Name)
	assert.Equal(t, "b", tags[1].Name)

	again, err := fs.ResolveTagIDs([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, tags[1].ID, again[0].ID)
}
