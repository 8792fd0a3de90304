package store

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projecthamster/hamster-sub000/internal/logger"
	"github.com/projecthamster/hamster-sub000/pkg/fact"
	"github.com/projecthamster/hamster-sub000/pkg/hday"
	"github.com/projecthamster/hamster-sub000/pkg/search"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// FactStore is the public face of the engine. Every call is serialized;
// mutations run in one transaction each. Commit hooks run right after the
// commit, still under the lock; subscribers are notified after it is
// released.
type FactStore struct {
	mu       sync.Mutex
	db       *SQLiteStore
	settings Settings
	parser   timerange.Parser
	cache    *catalogCache
	log      *logger.Logger
	id       string

	hooks    map[int]func()
	nextHook int

	subsMu  sync.Mutex
	subs    map[int]func(Notification)
	nextSub int
}

// Open opens (and migrates) the database at dsn.
func Open(dsn string, settings Settings, log *logger.Logger) (*FactStore, error) {
	if strings.TrimSpace(settings.UnsortedLabel) == "" {
		settings.UnsortedLabel = DefaultSettings().UnsortedLabel
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := NewSQLiteStoreWithDSN(dsn, settings)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	fs := &FactStore{
		db:       db,
		settings: settings,
		parser:   timerange.NewParser(settings.Calendar),
		cache:    newCatalogCache(),
		log:      log.With("store", id),
		id:       id,
		subs:     make(map[int]func(Notification)),
		hooks:    make(map[int]func()),
	}
	fs.log.Debug("store opened", "dsn", dsn, "dayStart", hday.FormatClock(settings.Calendar.DayStart))
	return fs, nil
}

// ID identifies this instance; it is the Origin of its notifications.
func (fs *FactStore) ID() string {
	return fs.id
}

// Calendar returns the hamster-day calendar in use.
func (fs *FactStore) Calendar() hday.Calendar {
	return fs.settings.Calendar
}

// Close closes the database connection.
func (fs *FactStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.db.Close()
}

// =============================================================================
// Plumbing
// =============================================================================

// mutate runs fn in a transaction under the store lock, then notifies.
func (fs *FactStore) mutate(op string, fn func() error) error {
	fs.mu.Lock()
	fs.db.takePending()
	err := fs.db.withTx(fn)
	changes := fs.db.takePending()
	if err != nil || changes.Has(ActivitiesChanged) {
		fs.cache.reset()
	}
	if err == nil && changes != 0 {
		fs.runHooks()
	}
	fs.mu.Unlock()

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			fs.log.Error("storage operation failed", "op", op, "error", err)
		}
		return err
	}
	fs.notify(changes)
	return nil
}

func (fs *FactStore) read(fn func() error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fn()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Callbacks run on the goroutine that made the change.
func (fs *FactStore) Subscribe(fn func(Notification)) func() {
	fs.subsMu.Lock()
	defer fs.subsMu.Unlock()

	id := fs.nextSub
	fs.nextSub++
	fs.subs[id] = fn
	return func() {
		fs.subsMu.Lock()
		defer fs.subsMu.Unlock()
		delete(fs.subs, id)
	}
}

// OnCommit registers fn to run after every write this store commits to the
// database file, index rebuilds included, and returns a function that
// removes it. fn runs while the store lock is held: it must not call back
// into the store.
func (fs *FactStore) OnCommit(fn func()) func() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id := fs.nextHook
	fs.nextHook++
	fs.hooks[id] = fn
	return func() {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		delete(fs.hooks, id)
	}
}

// Exclusive runs fn while no operation of this store is in flight. Like a
// commit hook, fn must not call back into the store.
func (fs *FactStore) Exclusive(fn func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fn()
}

func (fs *FactStore) runHooks() {
	for _, id := range slices.Sorted(maps.Keys(fs.hooks)) {
		fs.hooks[id]()
	}
}

// notify delivers c to subscribers. Index rebuilds are bookkeeping of a
// read and are not announced.
func (fs *FactStore) notify(c Change) {
	c &^= indexChanged
	if c == 0 {
		return
	}
	fs.subsMu.Lock()
	subs := make([]func(Notification), 0, len(fs.subs))
	for _, id := range slices.Sorted(maps.Keys(fs.subs)) {
		subs = append(subs, fs.subs[id])
	}
	fs.subsMu.Unlock()

	n := Notification{Changes: c, Origin: fs.id}
	for _, fn := range subs {
		fn(n)
	}
}

// Invalidate drops every cached row, including the search index, and tells
// subscribers that anything may have changed. It is called when another
// process rewrote the database.
func (fs *FactStore) Invalidate() {
	fs.mu.Lock()
	fs.cache.reset()
	err := fs.db.invalidateIndex()
	fs.runHooks()
	fs.mu.Unlock()

	if err != nil {
		fs.log.Error("failed to clear search index", "error", err)
	}
	fs.log.Warn("storage changed outside this store, caches dropped")
	fs.notify(AllChanged)
}

// IndexState reports whether the search index row of a fact is current.
func (fs *FactStore) IndexState(id int64) (IndexState, error) {
	var st IndexState
	err := fs.read(func() error {
		var err error
		st, err = fs.db.indexState(id)
		return err
	})
	return st, err
}

// =============================================================================
// Facts
// =============================================================================

// CheckFact runs the validation gate. A zero defaultDay formats suggestions
// relative to the fact's own hamster day.
func (fs *FactStore) CheckFact(f fact.Fact, defaultDay hday.Date) error {
	if defaultDay.IsZero() && !f.Range.Start.IsZero() {
		defaultDay = fs.settings.Calendar.Of(f.Range.Start)
	}
	return fact.Check(f, fs.parser, defaultDay)
}

// ParseFact reads the one-line fact form. A zero defaultDay means today.
func (fs *FactStore) ParseFact(text string, defaultDay hday.Date) fact.Fact {
	return fact.Parse(text, fs.parser, defaultDay, fs.settings.now())
}

// SerializeFact renders f in the form ParseFact reads.
func (fs *FactStore) SerializeFact(f fact.Fact, defaultDay hday.Date) string {
	return fact.Serialize(f, fs.parser, defaultDay)
}

// AddFact validates f, resolves it against the timeline and stores it. The
// returned fact is the stored one; when f continues the running fact that
// fact is returned unchanged.
func (fs *FactStore) AddFact(f fact.Fact) (*fact.Fact, error) {
	f = fact.New(f.Activity, f.Category, f.Description, f.Range, f.Tags...)
	if err := fs.CheckFact(f, hday.Date{}); err != nil {
		return nil, err
	}

	var row *factRow
	err := fs.mutate("add_fact", func() error {
		var err error
		row, err = fs.addFact(f)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := row.Fact.Copy()
	return &out, nil
}

// UpdateFact replaces fact id with f: the old fact is removed and f is added
// through the same resolution as AddFact, in one transaction. The result
// carries a new id.
func (fs *FactStore) UpdateFact(id int64, f fact.Fact) (*fact.Fact, error) {
	f = fact.New(f.Activity, f.Category, f.Description, f.Range, f.Tags...)
	if err := fs.CheckFact(f, hday.Date{}); err != nil {
		return nil, err
	}

	var row *factRow
	err := fs.mutate("update_fact", func() error {
		if err := fs.removeFact(id); err != nil {
			return err
		}
		var err error
		if row, err = fs.addFact(f); err != nil {
			return err
		}
		_, err = fs.db.gcTags()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := row.Fact.Copy()
	return &out, nil
}

// RemoveFact deletes a fact. Neighbours that were truncated, pushed or
// split when it was added get their old bounds back, as long as nothing else
// has changed them or moved into the space since.
func (fs *FactStore) RemoveFact(id int64) error {
	return fs.mutate("remove_fact", func() error {
		if err := fs.removeFact(id); err != nil {
			return err
		}
		_, err := fs.db.gcTags()
		return err
	})
}

func (fs *FactStore) removeFact(id int64) error {
	row, err := fs.db.getFact(id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotFound
	}
	reps, err := fs.db.loadRepairs(id)
	if err != nil {
		return err
	}
	fs.log.Debug("removing fact", "fact", id, "activity", row.Activity)
	if err := fs.db.deleteFact(id); err != nil {
		return err
	}
	undone, err := fs.db.undoRepairs(reps)
	if undone > 0 {
		fs.log.Info("restored neighbours", "fact", id, "count", undone, "recorded", len(reps))
	}
	return err
}

// GetFact returns nil when the fact does not exist.
func (fs *FactStore) GetFact(id int64) (*fact.Fact, error) {
	var out *fact.Fact
	err := fs.read(func() error {
		row, err := fs.db.getFact(id)
		if err != nil || row == nil {
			return err
		}
		f := row.Fact.Copy()
		out = &f
		return nil
	})
	return out, err
}

// GetFacts returns facts overlapping [r.Start, r.End) ordered by start,
// filtered by the search expression. A zero r.End leaves the window open.
// Running facts that started before the window are included.
func (fs *FactStore) GetFacts(r timerange.Range, searchText string) ([]fact.Fact, error) {
	q := search.ParseQuery(searchText)
	var out []fact.Fact

	collect := func() error {
		rows, err := fs.db.factsBetween(r.Start, r.End)
		if err != nil {
			return err
		}
		var hits map[int64]bool
		if !q.IsEmpty() {
			ids := make([]int64, len(rows))
			for i, row := range rows {
				ids[i] = row.ID
			}
			var rebuilt int64
			if hits, rebuilt, err = fs.db.searchFacts(ids, q); err != nil {
				return err
			}
			if rebuilt > 0 {
				fs.log.Debug("search index rows rebuilt", "count", rebuilt)
			}
		}
		for _, row := range rows {
			if hits == nil || hits[row.ID] {
				out = append(out, row.Fact.Copy())
			}
		}
		return nil
	}

	var err error
	if q.IsEmpty() {
		err = fs.read(collect)
	} else {
		err = fs.mutate("get_facts", collect)
	}
	return out, err
}

// GetFactsByDays returns the facts of the hamster days from..to inclusive.
// A zero to means the single day from.
func (fs *FactStore) GetFactsByDays(from, to hday.Date, searchText string) ([]fact.Fact, error) {
	if to.IsZero() || to.Before(from) {
		to = from
	}
	cal := fs.settings.Calendar
	return fs.GetFacts(timerange.New(cal.StartOf(from), cal.EndOf(to)), searchText)
}

// GetTodaysFacts returns the facts of the current hamster day.
func (fs *FactStore) GetTodaysFacts() ([]fact.Fact, error) {
	today := fs.settings.Calendar.Today(fs.settings.now())
	return fs.GetFactsByDays(today, today, "")
}

// Today returns the current hamster day.
func (fs *FactStore) Today() hday.Date {
	return fs.settings.Calendar.Today(fs.settings.now())
}

// Now returns the store clock.
func (fs *FactStore) Now() time.Time {
	return fs.settings.now()
}
