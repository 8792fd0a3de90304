package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/projecthamster/hamster-sub000/pkg/search"
)

// =============================================================================
// Search index (fact_index)
// =============================================================================

// The fact_index table caches the searchable text of each fact. Any write to
// a fact, its activity or its category deletes the row; rows are rebuilt on
// the next query that needs them.

func (s *SQLiteStore) invalidateFacts(ids ...int64) error {
	return forChunks(ids, func(chunk []int64) error {
		_, err := s.q().Exec("DELETE FROM fact_index WHERE id IN ("+placeholders(len(chunk))+")", int64Args(chunk)...)
		return err
	})
}

func (s *SQLiteStore) invalidateActivity(activityID int64) error {
	_, err := s.q().Exec("DELETE FROM fact_index WHERE id IN (SELECT id FROM facts WHERE activity_id = ?)", activityID)
	return err
}

func (s *SQLiteStore) invalidateCategory(categoryID int64) error {
	_, err := s.q().Exec(`
		DELETE FROM fact_index WHERE id IN (
			SELECT f.id FROM facts f JOIN activities a ON a.id = f.activity_id
			WHERE a.category_id = ?
		)
	`, categoryID)
	return err
}

func (s *SQLiteStore) invalidateIndex() error {
	_, err := s.q().Exec("DELETE FROM fact_index")
	return err
}

func (s *SQLiteStore) indexState(id int64) (IndexState, error) {
	var n int
	err := s.q().QueryRow("SELECT 1 FROM fact_index WHERE id = ?", id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexInvalid, nil
	}
	if err != nil {
		return IndexInvalid, err
	}
	return IndexValid, nil
}

// ensureIndexed rebuilds missing rows for ids and returns how many it wrote.
func (s *SQLiteStore) ensureIndexed(ids []int64) (int64, error) {
	var total int64
	err := forChunks(ids, func(chunk []int64) error {
		res, err := s.q().Exec(`
			INSERT INTO fact_index (id, name, category, description, tag)
			SELECT f.id, a.name, COALESCE(c.name, ''), f.description,
				COALESCE((
					SELECT group_concat(name, ' ') FROM (
						SELECT t.name AS name FROM fact_tags ft JOIN tags t ON t.id = ft.tag_id
						WHERE ft.fact_id = f.id ORDER BY ft.rowid
					)
				), '')
			FROM facts f
			JOIN activities a ON a.id = f.activity_id
			LEFT JOIN categories c ON c.id = a.category_id
			WHERE f.id IN (`+placeholders(len(chunk))+`)
				AND f.id NOT IN (SELECT id FROM fact_index)
		`, int64Args(chunk)...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		total += n
		return err
	})
	if total > 0 {
		s.touch(indexChanged)
	}
	return total, err
}

// searchFacts indexes ids as needed and returns the subset matching q.
func (s *SQLiteStore) searchFacts(ids []int64, q search.Query) (map[int64]bool, int64, error) {
	rebuilt, err := s.ensureIndexed(ids)
	if err != nil {
		return nil, 0, err
	}

	ix := search.NewIndex(q)
	err = forChunks(ids, func(chunk []int64) error {
		rows, err := s.q().Query("SELECT id, name, category, description, tag FROM fact_index WHERE id IN ("+
			placeholders(len(chunk))+")", int64Args(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var name, category, description, tag string
			if err := rows.Scan(&id, &name, &category, &description, &tag); err != nil {
				return err
			}
			ix.Add(uint64(id), strings.Join([]string{name, category, description, tag}, " "))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, rebuilt, err
	}

	hits := ix.Result()
	out := make(map[int64]bool, hits.GetCardinality())
	for _, id := range hits.ToArray() {
		out[int64(id)] = true
	}
	return out, rebuilt, nil
}
