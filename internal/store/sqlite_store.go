package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/projecthamster/hamster-sub000/pkg/fact"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// timeLayout is how timestamps are stored. Values are written in the
// calendar location so text comparison orders them chronologically.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore is the relational layer under FactStore. It is not safe for
// concurrent use; FactStore serializes every call.
type SQLiteStore struct {
	db  *sql.DB
	tx  *sql.Tx
	loc *time.Location

	unsorted string
	// pending collects what the current operation touched.
	pending Change
}

// schema is the first migration.
const schema = `
CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    search_name TEXT NOT NULL
);

-- deleted holds the ActivityState (0 active, 1 deleted)
CREATE TABLE IF NOT EXISTS activities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    search_name TEXT NOT NULL,
    category_id INTEGER NOT NULL DEFAULT -1,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    autocomplete INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS facts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_id INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    description TEXT NOT NULL DEFAULT ''
);

-- rowid order is the display order of a fact's tags
CREATE TABLE IF NOT EXISTS fact_tags (
    fact_id INTEGER NOT NULL,
    tag_id INTEGER NOT NULL,
    PRIMARY KEY (fact_id, tag_id)
);

-- Search cache, rebuildable from the tables above. A missing row means the
-- fact has not been indexed since its last change.
CREATE TABLE IF NOT EXISTS fact_index (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    description TEXT NOT NULL,
    tag TEXT NOT NULL
);
`

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	schema,
	`
CREATE INDEX IF NOT EXISTS idx_facts_start ON facts(start_time);
CREATE INDEX IF NOT EXISTS idx_facts_end ON facts(end_time);
CREATE INDEX IF NOT EXISTS idx_facts_activity ON facts(activity_id);
CREATE INDEX IF NOT EXISTS idx_activities_search ON activities(search_name, category_id);
CREATE INDEX IF NOT EXISTS idx_fact_tags_tag ON fact_tags(tag_id);
`,
	`
-- What the resolver did to neighbours when fact_id was placed, so removing
-- the fact can put them back. kind is 'start', 'end' or 'split'; a split also
-- inserted tail_id starting at tail_start.
CREATE TABLE IF NOT EXISTS fact_repairs (
    fact_id INTEGER NOT NULL,
    target_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    old_time TEXT,
    new_time TEXT NOT NULL,
    tail_id INTEGER,
    tail_start TEXT
);
CREATE INDEX IF NOT EXISTS idx_fact_repairs_fact ON fact_repairs(fact_id);
`,
}

// SchemaVersion is the version a freshly migrated database reports.
var SchemaVersion = len(migrations)

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore(settings Settings) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:", settings)
}

// NewSQLiteStoreWithDSN opens dsn and migrates it to the current schema.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string, settings Settings) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps ":memory:" to one database
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		loc:      settings.Calendar.Loc(),
		unsorted: settings.UnsortedLabel,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Version returns the stored schema version.
func (s *SQLiteStore) Version() (int, error) {
	var v int
	err := s.q().QueryRow("SELECT version FROM version LIMIT 1").Scan(&v)
	return v, err
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	v, err := s.Version()
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO version (version) VALUES (0)"); err != nil {
			return fmt.Errorf("failed to initialize version: %w", err)
		}
		v, err = 0, nil
	}
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if v > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", v, len(migrations))
	}

	for ; v < len(migrations); v++ {
		err := s.withTx(func() error {
			if _, err := s.q().Exec(migrations[v]); err != nil {
				return err
			}
			_, err := s.q().Exec("UPDATE version SET version = ?", v+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to migrate to version %d: %w", v+1, err)
		}
	}
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// q returns the open transaction, or the database outside of one.
func (s *SQLiteStore) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// withTx runs fn inside a transaction. Transactions do not nest: when one is
// already open fn joins it and the outer call decides commit or rollback.
func (s *SQLiteStore) withTx(fn func() error) (err error) {
	if s.tx != nil {
		return fn()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	defer func() {
		s.tx = nil
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) touch(c Change) {
	s.pending |= c
}

// takePending returns and clears the accumulated changes.
func (s *SQLiteStore) takePending() Change {
	c := s.pending
	s.pending = 0
	return c
}

// =============================================================================
// Facts
// =============================================================================

// factRow is a fact together with the catalog ids it references.
type factRow struct {
	fact.Fact
	ActivityID int64
	CategoryID int64
	TagIDs     []int64
}

const factSelect = `
	SELECT f.id, f.activity_id, f.start_time, f.end_time, f.description,
		a.name, a.category_id, COALESCE(c.name, '')
	FROM facts f
	JOIN activities a ON a.id = f.activity_id
	LEFT JOIN categories c ON c.id = a.category_id
`

// queryFacts loads the facts matching where (appended to factSelect) with
// their tags.
func (s *SQLiteStore) queryFacts(where string, args ...any) ([]*factRow, error) {
	rows, err := s.q().Query(factSelect+where, args...)
	if err != nil {
		return nil, err
	}

	var facts []*factRow
	for rows.Next() {
		var r factRow
		var start string
		var end sql.NullString
		if err := rows.Scan(&r.ID, &r.ActivityID, &start, &end, &r.Description,
			&r.Activity, &r.CategoryID, &r.Category); err != nil {
			rows.Close()
			return nil, err
		}
		if r.Range.Start, err = s.parseTime(start); err != nil {
			rows.Close()
			return nil, err
		}
		if end.Valid {
			if r.Range.End, err = s.parseTime(end.String); err != nil {
				rows.Close()
				return nil, err
			}
		}
		facts = append(facts, &r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.loadFactTags(facts); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *SQLiteStore) queryFact(where string, args ...any) (*factRow, error) {
	facts, err := s.queryFacts(where, args...)
	if err != nil || len(facts) == 0 {
		return nil, err
	}
	return facts[0], nil
}

func (s *SQLiteStore) loadFactTags(facts []*factRow) error {
	if len(facts) == 0 {
		return nil
	}
	byID := make(map[int64]*factRow, len(facts))
	ids := make([]int64, 0, len(facts))
	for _, f := range facts {
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	return forChunks(ids, func(chunk []int64) error {
		rows, err := s.q().Query(`
			SELECT ft.fact_id, t.id, t.name
			FROM fact_tags ft JOIN tags t ON t.id = ft.tag_id
			WHERE ft.fact_id IN (`+placeholders(len(chunk))+`)
			ORDER BY ft.rowid
		`, int64Args(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var factID, tagID int64
			var name string
			if err := rows.Scan(&factID, &tagID, &name); err != nil {
				return err
			}
			f := byID[factID]
			f.Tags = append(f.Tags, name)
			f.TagIDs = append(f.TagIDs, tagID)
		}
		return rows.Err()
	})
}

// getFact returns nil when the fact does not exist.
func (s *SQLiteStore) getFact(id int64) (*factRow, error) {
	return s.queryFact("WHERE f.id = ?", id)
}

// factsBetween returns facts overlapping [start, end), ordered by start.
// A zero end leaves the window open ended.
func (s *SQLiteStore) factsBetween(start, end time.Time) ([]*factRow, error) {
	var where strings.Builder
	var args []any
	where.WriteString("WHERE (f.end_time IS NULL OR f.end_time > ? OR f.start_time >= ?)")
	args = append(args, s.formatTime(start), s.formatTime(start))
	if !end.IsZero() {
		where.WriteString(" AND f.start_time < ?")
		args = append(args, s.formatTime(end))
	}
	where.WriteString(" ORDER BY f.start_time, f.id")
	return s.queryFacts(where.String(), args...)
}

// latestOpenFact returns the most recently started fact without an end.
func (s *SQLiteStore) latestOpenFact() (*factRow, error) {
	return s.queryFact("WHERE f.end_time IS NULL ORDER BY f.start_time DESC, f.id DESC LIMIT 1")
}

func (s *SQLiteStore) insertFact(activityID int64, r timerange.Range, description string, tagIDs []int64) (int64, error) {
	res, err := s.q().Exec(`
		INSERT INTO facts (activity_id, start_time, end_time, description)
		VALUES (?, ?, ?, ?)
	`, activityID, s.formatTime(r.Start), s.nullTime(r.End), description)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, tagID := range tagIDs {
		if _, err := s.q().Exec("INSERT OR IGNORE INTO fact_tags (fact_id, tag_id) VALUES (?, ?)", id, tagID); err != nil {
			return 0, err
		}
	}
	s.touch(FactsChanged)
	return id, nil
}

func (s *SQLiteStore) setFactStart(id int64, start time.Time) error {
	if _, err := s.q().Exec("UPDATE facts SET start_time = ? WHERE id = ?", s.formatTime(start), id); err != nil {
		return err
	}
	s.touch(FactsChanged)
	return s.invalidateFacts(id)
}

// setFactEnd sets the end; a zero end reopens the fact.
func (s *SQLiteStore) setFactEnd(id int64, end time.Time) error {
	if _, err := s.q().Exec("UPDATE facts SET end_time = ? WHERE id = ?", s.nullTime(end), id); err != nil {
		return err
	}
	s.touch(FactsChanged)
	return s.invalidateFacts(id)
}

func (s *SQLiteStore) deleteFact(id int64) error {
	if _, err := s.q().Exec("DELETE FROM fact_tags WHERE fact_id = ?", id); err != nil {
		return err
	}
	if _, err := s.q().Exec("DELETE FROM fact_repairs WHERE fact_id = ? OR target_id = ? OR tail_id = ?", id, id, id); err != nil {
		return err
	}
	if _, err := s.q().Exec("DELETE FROM facts WHERE id = ?", id); err != nil {
		return err
	}
	s.touch(FactsChanged)
	return s.invalidateFacts(id)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *SQLiteStore) formatTime(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}

func (s *SQLiteStore) nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return s.formatTime(t)
}

func (s *SQLiteStore) parseTime(v string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	return t, nil
}

// chunkSize keeps IN lists well under SQLite's variable limit.
const chunkSize = 500

func forChunks(ids []int64, fn func([]int64) error) error {
	for len(ids) > 0 {
		n := min(len(ids), chunkSize)
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
