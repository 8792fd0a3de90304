package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCacheCopies(t *testing.T) {
	c := newCatalogCache()

	_, ok := c.getCategories()
	assert.False(t, ok)

	cats := []Category{{ID: 1, Name: "work"}}
	c.putCategories(cats)
	cats[0].Name = "changed"

	got, ok := c.getCategories()
	require.True(t, ok)
	assert.Equal(t, "work", got[0].Name)
	got[0].Name = "changed"
	again, _ := c.getCategories()
	assert.Equal(t, "work", again[0].Name)

	a := &Activity{ID: 7, Name: "writing"}
	c.putActivity(a)
	a.Name = "changed"
	cached, ok := c.getActivity(7)
	require.True(t, ok)
	assert.Equal(t, "writing", cached.Name)
	assert.Equal(t, 2, c.len())

	c.reset()
	assert.Equal(t, 0, c.len())
	_, ok = c.getActivity(7)
	assert.False(t, ok)
}

func TestStoreCacheFollowsCatalogWrites(t *testing.T) {
	fs, _ := newTestStore(t)

	add(t, fs, "09:00-10:00 writing@work")
	_, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Positive(t, fs.cache.len())

	// a fact-only write keeps the catalog cache
	add(t, fs, "10:00-11:00 writing@work")
	assert.Positive(t, fs.cache.len())

	_, err = fs.AddCategory("home")
	require.NoError(t, err)
	assert.Zero(t, fs.cache.len())

	cats, err := fs.GetCategories()
	require.NoError(t, err)
	assert.Len(t, cats, 3)
}
