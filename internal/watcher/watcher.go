// Package watcher notices when the database file is rewritten by another
// process and tells the store to drop its caches.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/hack-pad/hackpadfs"
	"github.com/robfig/cron/v3"

	"github.com/projecthamster/hamster-sub000/internal/logger"
	"github.com/projecthamster/hamster-sub000/internal/store"
)

// Source is the side of the store the watcher drives. OnCommit hooks and
// Exclusive callbacks must be serialized with the source's own writes.
type Source interface {
	Invalidate()
	OnCommit(fn func()) func()
	Exclusive(fn func())
}

var _ Source = (*store.FactStore)(nil)

// snapshot is what the watcher remembers about the file.
type snapshot struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (s snapshot) differs(o snapshot) bool {
	return s.exists != o.exists || s.size != o.size || !s.modTime.Equal(o.modTime)
}

// Watcher polls one file. Writes made by its own source are folded into the
// baseline as they commit, so only foreign writes invalidate.
type Watcher struct {
	mu       sync.Mutex
	fsys     hackpadfs.FS
	path     string
	src      Source
	log      *logger.Logger
	baseline snapshot

	cron   *cron.Cron
	remove func()
}

// New records the current state of path and hooks into src's commits.
func New(fsys hackpadfs.FS, path string, src Source, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	w := &Watcher{
		fsys: fsys,
		path: path,
		src:  src,
		log:  log.With("watch", path),
	}
	snap, err := w.stat()
	if err != nil {
		return nil, err
	}
	w.baseline = snap
	w.remove = src.OnCommit(w.onCommit)
	return w, nil
}

func (w *Watcher) stat() (snapshot, error) {
	info, err := hackpadfs.Stat(w.fsys, w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{}, nil
	}
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to stat %s: %w", w.path, err)
	}
	return snapshot{exists: true, size: info.Size(), modTime: info.ModTime()}, nil
}

// onCommit runs under the source's lock, so no other commit can land
// between the write and the stat.
func (w *Watcher) onCommit() {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.stat()
	if err != nil {
		w.log.Warn("failed to refresh baseline", "error", err)
		return
	}
	w.baseline = snap
}

// Check compares the file with the baseline and invalidates the source when
// it changed. It reports whether it did. The comparison runs while the
// source is idle, so a commit of its own is either already in the baseline
// or not yet on disk.
func (w *Watcher) Check() (bool, error) {
	var (
		snap    snapshot
		changed bool
		err     error
	)
	w.src.Exclusive(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if snap, err = w.stat(); err != nil {
			return
		}
		changed = snap.differs(w.baseline)
		w.baseline = snap
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	w.log.Info("database changed on disk", "size", snap.size, "modified", snap.modTime)
	w.src.Invalidate()
	return true, nil
}

// =============================================================================
// Scheduling
// =============================================================================

// Start polls every interval until Stop. Intervals under a second are
// rounded up by the scheduler.
func (w *Watcher) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return errors.New("watcher already started")
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), w.poll); err != nil {
		return fmt.Errorf("failed to schedule watcher: %w", err)
	}
	c.Start()
	w.cron = c
	w.log.Debug("watching", "interval", interval)
	return nil
}

func (w *Watcher) poll() {
	if _, err := w.Check(); err != nil {
		w.log.Warn("watch check failed", "error", err)
	}
}

// Stop ends polling, waits for a running check to finish and removes the
// commit hook.
func (w *Watcher) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	remove := w.remove
	w.remove = nil
	w.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if remove != nil {
		remove()
	}
}
