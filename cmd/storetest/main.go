// Command storetest is a smoke driver for the fact store. It opens a scratch
// database with the configured calendar, runs the timeline scenarios end to
// end and leaves a watcher on the file while doing so.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	osfs "github.com/hack-pad/hackpadfs/os"

	"github.com/projecthamster/hamster-sub000/internal/config"
	"github.com/projecthamster/hamster-sub000/internal/logger"
	"github.com/projecthamster/hamster-sub000/internal/store"
	"github.com/projecthamster/hamster-sub000/internal/watcher"
	"github.com/projecthamster/hamster-sub000/pkg/fact"
	"github.com/projecthamster/hamster-sub000/pkg/hday"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

func main() {
	configPath := "hamster.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	dir, err := os.MkdirTemp("", "hamster-storetest-")
	if err != nil {
		log.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	settings, err := cfg.Settings()
	if err != nil {
		log.Fatalf("settings: %v", err)
	}
	day := hday.Date{Year: 2024, Month: time.January, Day: 15}
	clock := settings.Calendar.DateFor(day, 18*time.Hour)
	settings.Now = func() time.Time { return clock }

	path := filepath.Join(dir, filepath.Base(cfg.DBPath))
	fs, err := store.Open(path, settings, lg)
	if err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	defer fs.Close()
	fmt.Println("Opened", path)

	if err := fs.SyncAutocomplete(cfg.AutocompleteTags); err != nil {
		log.Fatalf("SyncAutocomplete failed: %v", err)
	}

	w := startWatcher(fs, path, cfg, lg)
	defer w.Stop()

	fmt.Println("\nTesting split...")
	testSplit(fs, day)

	fmt.Println("\nTesting continuation...")
	clock = settings.Calendar.DateFor(day, 14*time.Hour+5*time.Minute)
	testContinuation(fs, day)

	fmt.Println("\nTesting validation...")
	testValidation(fs, day)

	fmt.Println("\nTesting search...")
	testSearch(fs, day)

	changed, err := w.Check()
	if err != nil {
		log.Fatalf("watcher Check failed: %v", err)
	}
	if changed {
		log.Fatal("watcher reported the store's own writes as foreign")
	}
	fmt.Println("  ✓ watcher ignores own writes")

	fmt.Println("\n✅ All scenarios passed!")
}

func startWatcher(fs *store.FactStore, path string, cfg config.Config, lg *logger.Logger) *watcher.Watcher {
	fsys := osfs.NewFS()
	rel, err := fsys.FromOSPath(path)
	if err != nil {
		log.Fatalf("FromOSPath failed: %v", err)
	}
	w, err := watcher.New(fsys, rel, fs, lg)
	if err != nil {
		log.Fatalf("watcher.New failed: %v", err)
	}
	interval, err := cfg.Interval()
	if err != nil {
		log.Fatalf("watch interval: %v", err)
	}
	if err := w.Start(interval); err != nil {
		log.Fatalf("watcher Start failed: %v", err)
	}
	return w
}

func mustAdd(fs *store.FactStore, text string, day hday.Date) *fact.Fact {
	f, err := fs.AddFact(fs.ParseFact(text, day))
	if err != nil {
		log.Fatalf("AddFact %q failed: %v", text, err)
	}
	return f
}

func dayTimeline(fs *store.FactStore, day hday.Date) string {
	facts, err := fs.GetFactsByDays(day, day, "")
	if err != nil {
		log.Fatalf("GetFactsByDays failed: %v", err)
	}
	var lines []string
	for _, f := range facts {
		lines = append(lines, fs.SerializeFact(f, day))
	}
	return strings.Join(lines, "; ")
}

func testSplit(fs *store.FactStore, day hday.Date) {
	mustAdd(fs, "09:00-12:00 writing@work", day)
	mustAdd(fs, "10:00-10:30 meeting@work", day)

	got := dayTimeline(fs, day)
	want := "09:00 - 10:00 writing@work; 10:00 - 10:30 meeting@work; 10:30 - 12:00 writing@work"
	if got != want {
		log.Fatalf("split: expected %q, got %q", want, got)
	}
	fmt.Println("  ✓ fact inside another splits it")
}

func testContinuation(fs *store.FactStore, day hday.Date) {
	first := mustAdd(fs, "14:00 coding", day)
	start := first.Range.Start.Add(30 * time.Second)
	again, err := fs.AddFact(fact.New("coding", "", "", timerange.New(start, time.Time{})))
	if err != nil {
		log.Fatalf("AddFact failed: %v", err)
	}
	if again.ID != first.ID {
		log.Fatalf("continuation: expected fact %d, got %d", first.ID, again.ID)
	}

	open := 0
	facts, err := fs.GetFacts(timerange.Range{}, "")
	if err != nil {
		log.Fatalf("GetFacts failed: %v", err)
	}
	for _, f := range facts {
		if f.IsOpen() {
			open++
		}
	}
	if open != 1 {
		log.Fatalf("continuation: expected one open fact, got %d", open)
	}
	fmt.Println("  ✓ same running fact is not duplicated")
}

func testValidation(fs *store.FactStore, day hday.Date) {
	err := fs.CheckFact(fs.ParseFact("23:50-00:20 late night", day), day)
	var ferr *fact.Error
	if !errors.As(err, &ferr) || !errors.Is(err, fact.ErrNegativeDuration) {
		log.Fatalf("validation: expected a negative duration error, got %v", err)
	}
	fmt.Printf("  ✓ negative duration rejected, suggested %q\n", ferr.SuggestedText)
}

func testSearch(fs *store.FactStore, day hday.Date) {
	facts, err := fs.GetFactsByDays(day, day, "not work")
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	if len(facts) != 1 || facts[0].Activity != "coding" {
		log.Fatalf("search: expected only coding, got %d facts", len(facts))
	}
	fmt.Println("  ✓ negated search")
}
