package store

import (
	"database/sql"
	"errors"
	"strings"
)

// =============================================================================
// Categories
// =============================================================================

func searchName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// isUnsorted reports whether name refers to the unsorted category.
func (s *SQLiteStore) isUnsorted(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, s.unsorted)
}

// findCategory returns the id of the category called name, or 0.
func (s *SQLiteStore) findCategory(name string) (int64, error) {
	if s.isUnsorted(name) {
		return UnsortedID, nil
	}
	var id int64
	err := s.q().QueryRow("SELECT id FROM categories WHERE search_name = ? ORDER BY id LIMIT 1",
		searchName(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (s *SQLiteStore) getOrCreateCategory(name string) (int64, error) {
	id, err := s.findCategory(name)
	if err != nil || id != 0 {
		return id, err
	}
	name = strings.TrimSpace(name)
	res, err := s.q().Exec("INSERT INTO categories (name, search_name) VALUES (?, ?)", name, searchName(name))
	if err != nil {
		return 0, err
	}
	s.touch(ActivitiesChanged)
	return res.LastInsertId()
}

func (s *SQLiteStore) categoryExists(id int64) (bool, error) {
	if id == UnsortedID {
		return true, nil
	}
	var n int
	err := s.q().QueryRow("SELECT COUNT(*) FROM categories WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

// listCategories returns all categories ordered by name, unsorted last.
func (s *SQLiteStore) listCategories() ([]Category, error) {
	rows, err := s.q().Query("SELECT id, name FROM categories ORDER BY search_name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return append(cats, Category{ID: UnsortedID, Name: s.unsorted}), nil
}

func (s *SQLiteStore) renameCategory(id int64, name string) error {
	res, err := s.q().Exec("UPDATE categories SET name = ?, search_name = ? WHERE id = ?",
		strings.TrimSpace(name), searchName(name), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.touch(ActivitiesChanged | FactsChanged)
	return s.invalidateCategory(id)
}

// removeCategory re-points every activity of the category to unsorted in
// one statement, then drops the row.
func (s *SQLiteStore) removeCategory(id int64) error {
	if err := s.invalidateCategory(id); err != nil {
		return err
	}
	if _, err := s.q().Exec("UPDATE activities SET category_id = ? WHERE category_id = ?", UnsortedID, id); err != nil {
		return err
	}
	res, err := s.q().Exec("DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.touch(ActivitiesChanged | FactsChanged)
	return nil
}

// =============================================================================
// Activities
// =============================================================================

const activitySelect = `
	SELECT a.id, a.name, a.category_id, COALESCE(c.name, ''), a.deleted
	FROM activities a
	LEFT JOIN categories c ON c.id = a.category_id
`

func (s *SQLiteStore) queryActivities(where string, args ...any) ([]Activity, error) {
	rows, err := s.q().Query(activitySelect+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []Activity
	for rows.Next() {
		var a Activity
		var deleted int
		if err := rows.Scan(&a.ID, &a.Name, &a.CategoryID, &a.Category, &deleted); err != nil {
			return nil, err
		}
		if deleted != 0 {
			a.State = Deleted
		}
		if a.CategoryID == UnsortedID {
			a.Category = s.unsorted
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

func (s *SQLiteStore) queryActivity(where string, args ...any) (*Activity, error) {
	acts, err := s.queryActivities(where, args...)
	if err != nil || len(acts) == 0 {
		return nil, err
	}
	return &acts[0], nil
}

func (s *SQLiteStore) getActivity(id int64) (*Activity, error) {
	return s.queryActivity("WHERE a.id = ?", id)
}

// findActivity looks an activity up by name, case-insensitively. With
// AnyCategory every category is searched. Active rows win over deleted
// ones, then the newest.
func (s *SQLiteStore) findActivity(name string, categoryID int64) (*Activity, error) {
	if categoryID == AnyCategory {
		return s.queryActivity("WHERE a.search_name = ? ORDER BY a.deleted, a.id DESC LIMIT 1", searchName(name))
	}
	return s.queryActivity("WHERE a.search_name = ? AND a.category_id = ? ORDER BY a.deleted, a.id DESC LIMIT 1",
		searchName(name), categoryID)
}

// getOrCreateActivity returns the activity called name, creating it when
// missing. A deleted match is resurrected only when resurrect is set: it
// becomes active again and moves to unsorted.
func (s *SQLiteStore) getOrCreateActivity(name string, categoryID int64, resurrect bool) (*Activity, error) {
	a, err := s.findActivity(name, categoryID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		if a.State == Deleted && resurrect {
			if err := s.resurrectActivity(a.ID); err != nil {
				return nil, err
			}
			return s.getActivity(a.ID)
		}
		return a, nil
	}

	if categoryID == AnyCategory {
		categoryID = UnsortedID
	}
	name = strings.TrimSpace(name)
	res, err := s.q().Exec("INSERT INTO activities (name, search_name, category_id, deleted) VALUES (?, ?, ?, 0)",
		name, searchName(name), categoryID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s.touch(ActivitiesChanged)
	return s.getActivity(id)
}

// resurrectActivity clears the deleted flag and resets the category to
// unsorted.
func (s *SQLiteStore) resurrectActivity(id int64) error {
	if _, err := s.q().Exec("UPDATE activities SET deleted = 0, category_id = ? WHERE id = ?", UnsortedID, id); err != nil {
		return err
	}
	s.touch(ActivitiesChanged)
	return s.invalidateActivity(id)
}

// removeActivity hard-deletes an unreferenced activity and soft-deletes a
// referenced one. It reports whether the row was kept as deleted.
func (s *SQLiteStore) removeActivity(id int64) (bool, error) {
	a, err := s.getActivity(id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, ErrNotFound
	}

	var refs int
	if err := s.q().QueryRow("SELECT COUNT(*) FROM facts WHERE activity_id = ?", id).Scan(&refs); err != nil {
		return false, err
	}
	s.touch(ActivitiesChanged)
	if refs == 0 {
		_, err = s.q().Exec("DELETE FROM activities WHERE id = ?", id)
		return false, err
	}
	_, err = s.q().Exec("UPDATE activities SET deleted = 1 WHERE id = ?", id)
	return true, err
}

func (s *SQLiteStore) renameActivity(id int64, name string) error {
	res, err := s.q().Exec("UPDATE activities SET name = ?, search_name = ? WHERE id = ?",
		strings.TrimSpace(name), searchName(name), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.touch(ActivitiesChanged | FactsChanged)
	return s.invalidateActivity(id)
}

// moveActivity puts the activity into categoryID. If the destination already
// has an activity with the same name, the facts are re-pointed to it and the
// moved activity is dropped. It returns the id that now carries the facts.
func (s *SQLiteStore) moveActivity(id, categoryID int64) (int64, bool, error) {
	a, err := s.getActivity(id)
	if err != nil {
		return 0, false, err
	}
	if a == nil {
		return 0, false, ErrNotFound
	}

	dup, err := s.queryActivity(
		"WHERE a.search_name = ? AND a.category_id = ? AND a.id != ? ORDER BY a.deleted, a.id DESC LIMIT 1",
		searchName(a.Name), categoryID, id)
	if err != nil {
		return 0, false, err
	}
	s.touch(ActivitiesChanged | FactsChanged)

	if dup == nil {
		if a.CategoryID == categoryID {
			return id, false, nil
		}
		if err := s.invalidateActivity(id); err != nil {
			return 0, false, err
		}
		_, err := s.q().Exec("UPDATE activities SET category_id = ? WHERE id = ?", categoryID, id)
		return id, false, err
	}

	if err := s.invalidateActivity(id); err != nil {
		return 0, false, err
	}
	if _, err := s.q().Exec("UPDATE facts SET activity_id = ? WHERE activity_id = ?", dup.ID, id); err != nil {
		return 0, false, err
	}
	if dup.State == Deleted {
		if _, err := s.q().Exec("UPDATE activities SET deleted = 0 WHERE id = ?", dup.ID); err != nil {
			return 0, false, err
		}
	}
	if _, err := s.q().Exec("DELETE FROM activities WHERE id = ?", id); err != nil {
		return 0, false, err
	}
	return dup.ID, true, nil
}

// categoryActivities lists the active activities of a category by name.
func (s *SQLiteStore) categoryActivities(categoryID int64) ([]Activity, error) {
	return s.queryActivities("WHERE a.category_id = ? AND a.deleted = 0 ORDER BY a.search_name, a.id", categoryID)
}

// searchActivities lists active activities whose name contains text, most
// recently used first.
func (s *SQLiteStore) searchActivities(text string) ([]Activity, error) {
	return s.queryActivities(`
		LEFT JOIN (
			SELECT activity_id, MAX(start_time) AS last_used FROM facts GROUP BY activity_id
		) u ON u.activity_id = a.id
		WHERE a.deleted = 0 AND instr(a.search_name, ?) > 0
		ORDER BY u.last_used IS NULL, u.last_used DESC, a.search_name
	`, searchName(text))
}
