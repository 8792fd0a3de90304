package store

import (
	"time"

	"github.com/projecthamster/hamster-sub000/pkg/fact"
	"github.com/projecthamster/hamster-sub000/pkg/timerange"
)

// =============================================================================
// Timeline resolution
// =============================================================================

const (
	// continuationWindow bounds how far from now a new fact may start and
	// still interact with the running fact.
	continuationWindow = 24 * time.Hour
	// misfireThreshold is the shortest duration a running fact without a
	// description survives when another fact replaces it.
	misfireThreshold = time.Minute
	// squeezeLookAhead bounds the search for a following fact when a new
	// fact has no end.
	squeezeLookAhead = 12 * time.Hour
)

// addFact resolves f against the timeline and persists it. It must run
// inside a transaction. Everything below the validation gate is total: the
// only errors are storage errors. What happened to the neighbours is saved
// with the new fact so removing it can undo that.
func (fs *FactStore) addFact(f fact.Fact) (*factRow, error) {
	db := fs.db
	start := f.Range.Start.Truncate(time.Second)
	end := f.Range.End
	if !end.IsZero() {
		end = end.Truncate(time.Second)
	}

	categoryID := AnyCategory
	if f.Category != "" {
		id, err := db.getOrCreateCategory(f.Category)
		if err != nil {
			return nil, err
		}
		categoryID = id
	}
	act, err := db.getOrCreateActivity(f.Activity, categoryID, true)
	if err != nil {
		return nil, err
	}
	tags, err := db.resolveTags(f.Tags)
	if err != nil {
		return nil, err
	}

	var reps repairs
	existing, start, err := fs.continueRunning(&reps, act, tags, f.Description, start, end)
	if err != nil || existing != nil {
		return existing, err
	}

	if end.IsZero() {
		end, err = fs.squeezeIn(&reps, start)
	} else {
		err = fs.solveOverlaps(&reps, start, end)
	}
	if err != nil {
		return nil, err
	}

	id, err := db.insertFact(act.ID, timerange.New(start, end), f.Description, tagIDs(tags))
	if err != nil {
		return nil, err
	}
	if err := db.saveRepairs(id, reps); err != nil {
		return nil, err
	}
	return db.getFact(id)
}

// continueRunning applies the continuation rules against the running fact.
// It returns the fact to hand back when the new one is absorbed, and the
// start the new fact should use.
func (fs *FactStore) continueRunning(reps *repairs, act *Activity, tags []Tag, description string, start, end time.Time) (*factRow, time.Time, error) {
	db := fs.db
	if d := fs.settings.now().Sub(start); d > continuationWindow || d < -continuationWindow {
		return nil, start, nil
	}
	running, err := db.latestOpenFact()
	if err != nil || running == nil || running.Range.Start.After(start) {
		return nil, start, err
	}

	names := tagNames(tags)
	if end.IsZero() && running.ActivityID == act.ID && running.Description == description &&
		fact.SameTagSet(running.Tags, names) {
		fs.log.Info("same fact, not adding", "fact", running.ID, "activity", running.Activity)
		return running, start, nil
	}

	if running.Description == "" && start.Sub(running.Range.Start) < misfireThreshold {
		fs.log.Info("dropping misfired fact", "fact", running.ID, "activity", running.Activity)
		if err := db.deleteFact(running.ID); err != nil {
			return nil, start, err
		}
		if _, err := db.gcTags(); err != nil {
			return nil, start, err
		}
		start = running.Range.Start
		if !end.IsZero() {
			return nil, start, nil
		}

		prev, err := db.queryFact(`
			WHERE f.end_time IS NOT NULL AND f.end_time <= ? AND f.end_time >= ?
			ORDER BY f.end_time DESC, f.id DESC LIMIT 1
		`, db.formatTime(start), db.formatTime(start.Add(-misfireThreshold)))
		if err != nil {
			return nil, start, err
		}
		if prev != nil && prev.ActivityID == act.ID && fact.SameTagSet(prev.Tags, names) {
			fs.log.Info("glueing", "fact", prev.ID, "activity", prev.Activity)
			if err := db.setFactEnd(prev.ID, time.Time{}); err != nil {
				return nil, start, err
			}
			glued, err := db.getFact(prev.ID)
			return glued, start, err
		}
		return nil, start, nil
	}

	fs.log.Info("closing running fact", "fact", running.ID, "end", start)
	reps.add(repair{kind: repairEnd, target: running.ID, new: start})
	return nil, start, db.setFactEnd(running.ID, start)
}

// squeezeIn finds the end for a fact starting at start without an explicit
// end. Closed facts containing start are truncated to start, and the next
// fact beginning within squeezeLookAhead bounds the new one. A closed,
// non-empty fact starting exactly at start counts as the next one. A zero
// result means the new fact stays open, in which case no other fact is left
// open. Every change to a neighbour is recorded in reps.
func (fs *FactStore) squeezeIn(reps *repairs, start time.Time) (time.Time, error) {
	db := fs.db
	at := db.formatTime(start)
	containing, err := db.queryFacts(`
		WHERE f.start_time < ? AND f.end_time > ?
		ORDER BY f.start_time, f.id
	`, at, at)
	if err != nil {
		return time.Time{}, err
	}
	for _, c := range containing {
		fs.log.Info("truncating fact", "fact", c.ID, "activity", c.Activity, "end", start)
		reps.add(repair{kind: repairEnd, target: c.ID, old: c.Range.End, new: start})
		if err := db.setFactEnd(c.ID, start); err != nil {
			return time.Time{}, err
		}
	}

	next, err := db.queryFact(`
		WHERE (f.start_time > ? OR (f.start_time = ? AND f.end_time > ?)) AND f.start_time < ?
		ORDER BY f.start_time, f.id LIMIT 1
	`, at, at, at, db.formatTime(start.Add(squeezeLookAhead)))
	if err != nil {
		return time.Time{}, err
	}
	if next != nil {
		return next.Range.Start, nil
	}

	running, err := db.latestOpenFact()
	if err != nil || running == nil {
		return time.Time{}, err
	}
	if running.Range.Start.After(start) {
		return running.Range.Start, nil
	}
	fs.log.Info("closing running fact", "fact", running.ID, "end", start)
	reps.add(repair{kind: repairEnd, target: running.ID, new: start})
	return time.Time{}, db.setFactEnd(running.ID, start)
}

// solveOverlaps repairs every fact overlapping [start, end), in start order.
// Facts entirely inside the range are left alone.
func (fs *FactStore) solveOverlaps(reps *repairs, start, end time.Time) error {
	db := fs.db
	conflicts, err := db.queryFacts(`
		WHERE f.start_time < ? AND (f.end_time IS NULL OR f.end_time > ?)
		ORDER BY f.start_time, f.id
	`, db.formatTime(end), db.formatTime(start))
	if err != nil {
		return err
	}

	for _, old := range conflicts {
		oldStart, oldEnd := old.Range.Start, old.Range.End
		startsBefore := oldStart.Before(start)
		endsAfter := oldEnd.IsZero() || oldEnd.After(end)

		switch {
		case !startsBefore && !endsAfter:
			fs.log.Info("fact fully contained, leaving it", "fact", old.ID, "activity", old.Activity)
		case startsBefore && endsAfter:
			fs.log.Info("splitting", "fact", old.ID, "activity", old.Activity, "at", start, "resume", end)
			if err := db.setFactEnd(old.ID, start); err != nil {
				return err
			}
			tail, err := db.insertFact(old.ActivityID, timerange.New(end, oldEnd), old.Description, old.TagIDs)
			if err != nil {
				return err
			}
			reps.add(repair{kind: repairSplit, target: old.ID, old: oldEnd, new: start, tail: tail, tailStart: end})
		case !startsBefore:
			fs.log.Info("overlapping start", "fact", old.ID, "activity", old.Activity, "start", end)
			reps.add(repair{kind: repairStart, target: old.ID, old: oldStart, new: end})
			if err := db.setFactStart(old.ID, end); err != nil {
				return err
			}
		default:
			fs.log.Info("overlapping end", "fact", old.ID, "activity", old.Activity, "end", start)
			reps.add(repair{kind: repairEnd, target: old.ID, old: oldEnd, new: start})
			if err := db.setFactEnd(old.ID, start); err != nil {
				return err
			}
		}
	}
	return nil
}

func tagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}
