package store

import (
	"strings"

	"github.com/projecthamster/hamster-sub000/pkg/fact"
)

// =============================================================================
// Categories
// =============================================================================

// AddCategory returns the id of the category called name, creating it when
// missing. The unsorted label and the empty name give UnsortedID.
func (fs *FactStore) AddCategory(name string) (int64, error) {
	if err := fact.CheckCategory(name); err != nil {
		return 0, err
	}
	var id int64
	err := fs.mutate("add_category", func() error {
		var err error
		id, err = fs.db.getOrCreateCategory(name)
		return err
	})
	return id, err
}

// UpdateCategory renames a category. Renaming unsorted is ignored.
func (fs *FactStore) UpdateCategory(id int64, name string) error {
	if id == UnsortedID {
		return nil
	}
	if err := fact.CheckCategory(name); err != nil {
		return err
	}
	return fs.mutate("update_category", func() error {
		return fs.db.renameCategory(id, name)
	})
}

// RemoveCategory moves all activities of the category to unsorted and
// deletes it. Removing unsorted is ignored.
func (fs *FactStore) RemoveCategory(id int64) error {
	if id == UnsortedID {
		return nil
	}
	return fs.mutate("remove_category", func() error {
		fs.log.Info("removing category", "category", id)
		return fs.db.removeCategory(id)
	})
}

// GetCategories lists every category by name, unsorted last.
func (fs *FactStore) GetCategories() ([]Category, error) {
	if cats, ok := fs.cache.getCategories(); ok {
		return cats, nil
	}
	var cats []Category
	err := fs.read(func() error {
		var err error
		if cats, err = fs.db.listCategories(); err != nil {
			return err
		}
		fs.cache.putCategories(cats)
		return nil
	})
	return cats, err
}

// =============================================================================
// Activities
// =============================================================================

// AddActivity returns the activity called name in categoryID, creating it
// when missing. A deleted match is resurrected, which moves it to unsorted.
// AnyCategory means unsorted.
func (fs *FactStore) AddActivity(name string, categoryID int64) (*Activity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fact.ErrMissingActivity
	}
	if categoryID == AnyCategory {
		categoryID = UnsortedID
	}
	var act *Activity
	err := fs.mutate("add_activity", func() error {
		ok, err := fs.db.categoryExists(categoryID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		act, err = fs.db.getOrCreateActivity(name, categoryID, true)
		return err
	})
	return act, err
}

// UpdateActivity renames an activity and moves it to categoryID. When the
// destination already holds an activity of that name the two are merged.
func (fs *FactStore) UpdateActivity(id int64, name string, categoryID int64) error {
	if strings.TrimSpace(name) == "" {
		return fact.ErrMissingActivity
	}
	if categoryID == AnyCategory {
		categoryID = UnsortedID
	}
	return fs.mutate("update_activity", func() error {
		ok, err := fs.db.categoryExists(categoryID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if err := fs.db.renameActivity(id, name); err != nil {
			return err
		}
		return fs.moveActivity(id, categoryID)
	})
}

// ChangeCategory moves an activity to categoryID, merging it into a
// same-named activity already there.
func (fs *FactStore) ChangeCategory(activityID, categoryID int64) error {
	if categoryID == AnyCategory {
		categoryID = UnsortedID
	}
	return fs.mutate("change_category", func() error {
		ok, err := fs.db.categoryExists(categoryID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return fs.moveActivity(activityID, categoryID)
	})
}

func (fs *FactStore) moveActivity(id, categoryID int64) error {
	into, merged, err := fs.db.moveActivity(id, categoryID)
	if err != nil {
		return err
	}
	if merged {
		fs.log.Info("merged activity", "activity", id, "into", into, "category", categoryID)
	}
	return nil
}

// RemoveActivity deletes an activity; one still used by facts is only
// marked deleted and comes back the next time a fact names it.
func (fs *FactStore) RemoveActivity(id int64) error {
	return fs.mutate("remove_activity", func() error {
		soft, err := fs.db.removeActivity(id)
		if err == nil && soft {
			fs.log.Info("activity in use, marked deleted", "activity", id)
		}
		return err
	})
}

// GetActivity returns nil when the activity does not exist.
func (fs *FactStore) GetActivity(id int64) (*Activity, error) {
	if a, ok := fs.cache.getActivity(id); ok {
		return a, nil
	}
	var act *Activity
	err := fs.read(func() error {
		var err error
		if act, err = fs.db.getActivity(id); err != nil || act == nil {
			return err
		}
		fs.cache.putActivity(act)
		return nil
	})
	return act, err
}

// GetActivityByName looks an activity up without creating it. AnyCategory
// searches every category. A deleted match is resurrected into unsorted only
// when resurrect is set; discovery callers leave it unset.
func (fs *FactStore) GetActivityByName(name string, categoryID int64, resurrect bool) (*Activity, error) {
	var act *Activity
	find := func() error {
		var err error
		act, err = fs.db.findActivity(name, categoryID)
		if err != nil || act == nil || act.State != Deleted || !resurrect {
			return err
		}
		if err := fs.db.resurrectActivity(act.ID); err != nil {
			return err
		}
		act, err = fs.db.getActivity(act.ID)
		return err
	}
	var err error
	if resurrect {
		err = fs.mutate("get_activity_by_name", find)
	} else {
		err = fs.read(find)
	}
	return act, err
}

// GetCategoryActivities lists the active activities of a category by name.
func (fs *FactStore) GetCategoryActivities(categoryID int64) ([]Activity, error) {
	var acts []Activity
	err := fs.read(func() error {
		var err error
		acts, err = fs.db.categoryActivities(categoryID)
		return err
	})
	return acts, err
}

// GetActivities lists active activities whose name contains text, most
// recently used first. It never resurrects anything.
func (fs *FactStore) GetActivities(text string) ([]Activity, error) {
	var acts []Activity
	err := fs.read(func() error {
		var err error
		acts, err = fs.db.searchActivities(text)
		return err
	})
	return acts, err
}

// =============================================================================
// Tags
// =============================================================================

// GetTags lists tags by name.
func (fs *FactStore) GetTags(onlyAutocomplete bool) ([]Tag, error) {
	var tags []Tag
	err := fs.read(func() error {
		var err error
		tags, err = fs.db.listTags(onlyAutocomplete)
		return err
	})
	return tags, err
}

// ResolveTagIDs returns tags for names in order, creating missing ones.
func (fs *FactStore) ResolveTagIDs(names []string) ([]Tag, error) {
	var tags []Tag
	err := fs.mutate("resolve_tag_ids", func() error {
		var err error
		tags, err = fs.db.resolveTags(names)
		return err
	})
	return tags, err
}

// SyncAutocomplete makes names the exact set of autocomplete tags and drops
// hidden tags that no fact uses.
func (fs *FactStore) SyncAutocomplete(names []string) error {
	return fs.mutate("sync_autocomplete", func() error {
		return fs.db.syncAutocomplete(names)
	})
}
