package store

import (
	"slices"
	"sync"
)

// catalogCache keeps read-mostly catalog rows in memory. Any catalog write
// and every Invalidate drops it; the next read refills it from SQLite.
type catalogCache struct {
	mu         sync.RWMutex
	categories []Category
	activities map[int64]*Activity
}

func newCatalogCache() *catalogCache {
	return &catalogCache{
		activities: make(map[int64]*Activity),
	}
}

func (c *catalogCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = nil
	c.activities = make(map[int64]*Activity)
}

// =============================================================================
// Categories
// =============================================================================

func (c *catalogCache) getCategories() ([]Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.categories == nil {
		return nil, false
	}
	return slices.Clone(c.categories), true
}

func (c *catalogCache) putCategories(cats []Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = slices.Clone(cats)
}

// =============================================================================
// Activities
// =============================================================================

func (c *catalogCache) getActivity(id int64) (*Activity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if a, ok := c.activities[id]; ok {
		copy := *a
		return &copy, true
	}
	return nil, false
}

func (c *catalogCache) putActivity(a *Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Deep copy to avoid mutation issues
	copy := *a
	c.activities[a.ID] = &copy
}

func (c *catalogCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.activities)
	if c.categories != nil {
		n += len(c.categories)
	}
	return n
}
