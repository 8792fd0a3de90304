package store

import (
	"database/sql"
	"time"
)

// =============================================================================
// Neighbour repairs
// =============================================================================

type repairKind string

const (
	// repairStart: the target's start was pushed from old to new.
	repairStart repairKind = "start"
	// repairEnd: the target's end was pulled from old (zero when it was
	// running) to new.
	repairEnd repairKind = "end"
	// repairSplit: the target's end was cut from old to new and a tail
	// covering the rest was inserted.
	repairSplit repairKind = "split"
)

// repair is one change the resolver made to an existing fact while placing
// a new one.
type repair struct {
	kind      repairKind
	target    int64
	old       time.Time
	new       time.Time
	tail      int64
	tailStart time.Time
}

// repairs collects the changes made while placing one fact.
type repairs []repair

func (r *repairs) add(rep repair) {
	*r = append(*r, rep)
}

func (s *SQLiteStore) saveRepairs(factID int64, reps repairs) error {
	for _, r := range reps {
		var tail, tailStart any
		if r.kind == repairSplit {
			tail, tailStart = r.tail, s.formatTime(r.tailStart)
		}
		if _, err := s.q().Exec(`
			INSERT INTO fact_repairs (fact_id, target_id, kind, old_time, new_time, tail_id, tail_start)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, factID, r.target, string(r.kind), s.nullTime(r.old), s.formatTime(r.new), tail, tailStart); err != nil {
			return err
		}
	}
	return nil
}

// loadRepairs returns the repairs recorded for factID in the order they
// were made.
func (s *SQLiteStore) loadRepairs(factID int64) (repairs, error) {
	rows, err := s.q().Query(`
		SELECT target_id, kind, old_time, new_time, tail_id, tail_start
		FROM fact_repairs WHERE fact_id = ? ORDER BY rowid
	`, factID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out repairs
	for rows.Next() {
		var r repair
		var kind, newTime string
		var oldTime, tailStart sql.NullString
		var tail sql.NullInt64
		if err := rows.Scan(&r.target, &kind, &oldTime, &newTime, &tail, &tailStart); err != nil {
			return nil, err
		}
		r.kind = repairKind(kind)
		if r.new, err = s.parseTime(newTime); err != nil {
			return nil, err
		}
		if oldTime.Valid {
			if r.old, err = s.parseTime(oldTime.String); err != nil {
				return nil, err
			}
		}
		if tail.Valid {
			r.tail = tail.Int64
		}
		if tailStart.Valid {
			if r.tailStart, err = s.parseTime(tailStart.String); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// regionFree reports whether no fact other than exclude overlaps
// [start, end). A zero end means the region is unbounded, so any running
// fact also occupies it.
func (s *SQLiteStore) regionFree(start, end time.Time, exclude int64) (bool, error) {
	query := "SELECT COUNT(*) FROM facts WHERE id != ? AND (end_time IS NULL OR end_time > ?)"
	args := []any{exclude, s.formatTime(start)}
	if !end.IsZero() {
		query += " AND start_time < ?"
		args = append(args, s.formatTime(end))
	}
	var n int
	err := s.q().QueryRow(query, args...).Scan(&n)
	return n == 0, err
}

// undoRepairs puts neighbours back the way they were before the fact owning
// reps was placed. A neighbour is only restored while it still has the
// bounds the resolver gave it and the space it would grow into is empty.
// It returns how many repairs were undone.
func (s *SQLiteStore) undoRepairs(reps repairs) (int, error) {
	undone := 0
	for i := len(reps) - 1; i >= 0; i-- {
		ok, err := s.undoRepair(reps[i])
		if err != nil {
			return undone, err
		}
		if ok {
			undone++
		}
	}
	return undone, nil
}

func (s *SQLiteStore) undoRepair(r repair) (bool, error) {
	target, err := s.getFact(r.target)
	if err != nil || target == nil {
		return false, err
	}

	switch r.kind {
	case repairStart:
		if !target.Range.Start.Equal(r.new) {
			return false, nil
		}
		free, err := s.regionFree(r.old, r.new, target.ID)
		if err != nil || !free {
			return false, err
		}
		return true, s.setFactStart(target.ID, r.old)

	case repairSplit:
		tail, err := s.getFact(r.tail)
		if err != nil {
			return false, err
		}
		if tail != nil && tail.Range.Start.Equal(r.tailStart) && sameEnd(tail.Range.End, r.old) {
			if err := s.deleteFact(tail.ID); err != nil {
				return false, err
			}
		}
		fallthrough

	case repairEnd:
		if !sameEnd(target.Range.End, r.new) {
			return false, nil
		}
		free, err := s.regionFree(r.new, r.old, target.ID)
		if err != nil || !free {
			return false, err
		}
		return true, s.setFactEnd(target.ID, r.old)
	}
	return false, nil
}

// sameEnd compares end times where zero means running.
func sameEnd(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	return a.Equal(b)
}
