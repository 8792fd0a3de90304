package store

import (
	"database/sql"
	"errors"
	"strings"
)

// =============================================================================
// Tags
// =============================================================================

func (s *SQLiteStore) findTag(name string) (*Tag, error) {
	var t Tag
	var auto int
	err := s.q().QueryRow("SELECT id, name, autocomplete FROM tags WHERE name = ?", name).Scan(&t.ID, &t.Name, &auto)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Autocomplete = auto != 0
	return &t, nil
}

// resolveTags returns a tag per distinct non-blank name, in order. Missing
// tags are created; hidden ones are shown again since the user named them.
func (s *SQLiteStore) resolveTags(names []string) ([]Tag, error) {
	var tags []Tag
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		t, err := s.findTag(name)
		if err != nil {
			return nil, err
		}
		switch {
		case t == nil:
			res, err := s.q().Exec("INSERT INTO tags (name, autocomplete) VALUES (?, 1)", name)
			if err != nil {
				return nil, err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			t = &Tag{ID: id, Name: name, Autocomplete: true}
			s.touch(TagsChanged)
		case !t.Autocomplete:
			if _, err := s.q().Exec("UPDATE tags SET autocomplete = 1 WHERE id = ?", t.ID); err != nil {
				return nil, err
			}
			t.Autocomplete = true
			s.touch(TagsChanged)
		}
		tags = append(tags, *t)
	}
	return tags, nil
}

func (s *SQLiteStore) listTags(onlyAutocomplete bool) ([]Tag, error) {
	query := "SELECT id, name, autocomplete FROM tags"
	if onlyAutocomplete {
		query += " WHERE autocomplete = 1"
	}
	rows, err := s.q().Query(query + " ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		var auto int
		if err := rows.Scan(&t.ID, &t.Name, &auto); err != nil {
			return nil, err
		}
		t.Autocomplete = auto != 0
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// syncAutocomplete makes exactly the allowed names autocomplete tags,
// creating missing ones, and drops hidden tags no fact uses.
func (s *SQLiteStore) syncAutocomplete(allowed []string) error {
	if _, err := s.q().Exec("UPDATE tags SET autocomplete = 0"); err != nil {
		return err
	}
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.q().Exec(`
			INSERT INTO tags (name, autocomplete) VALUES (?, 1)
			ON CONFLICT(name) DO UPDATE SET autocomplete = 1
		`, name); err != nil {
			return err
		}
	}
	s.touch(TagsChanged)
	_, err := s.gcTags()
	return err
}

// gcTags deletes hidden tags without fact references.
func (s *SQLiteStore) gcTags() (int64, error) {
	res, err := s.q().Exec(`
		DELETE FROM tags
		WHERE autocomplete = 0 AND id NOT IN (SELECT DISTINCT tag_id FROM fact_tags)
	`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if n > 0 {
		s.touch(TagsChanged)
	}
	return n, err
}

func tagIDs(tags []Tag) []int64 {
	ids := make([]int64, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}
