// Package content maintains the two course-filtered feeds shown by
// the portal: assignments and schedule entries. Each feed is replaced
// wholesale from store snapshots; a generation counter fences out
// deliveries from subscriptions that were already retargeted away.
package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"lectern/portal/internal/docstore"
	"lectern/portal/internal/metrics"
	"lectern/portal/internal/model"
)

const courseField = "course"

// AssignmentsPath returns the store collection holding the app's
// assignment records.
func AssignmentsPath(appID string) string {
	return "apps/" + appID + "/public/assignments"
}

// SchedulePath returns the store collection holding the app's
// schedule records.
func SchedulePath(appID string) string {
	return "apps/" + appID + "/public/schedule"
}

// Feeds owns the live content subscriptions for one course. Retarget
// closes the old subscriptions before opening new ones, so at most
// one course is ever watched.
type Feeds struct {
	store docstore.Store
	appID string
	log   *slog.Logger

	mu          sync.Mutex
	course      string
	generation  uint64
	assignWatch *docstore.CollectionWatcher
	schedWatch  *docstore.CollectionWatcher

	assignmentCh chan []model.Assignment
	scheduleCh   chan []model.ScheduleEntry
}

func NewFeeds(store docstore.Store, appID string, logger *slog.Logger) *Feeds {
	return &Feeds{
		store:        store,
		appID:        appID,
		log:          logger,
		assignmentCh: make(chan []model.Assignment, 1),
		scheduleCh:   make(chan []model.ScheduleEntry, 1),
	}
}

// Assignments delivers each new assignment snapshot, newest wins.
func (f *Feeds) Assignments() <-chan []model.Assignment { return f.assignmentCh }

// Schedule delivers each new schedule snapshot, newest wins.
func (f *Feeds) Schedule() <-chan []model.ScheduleEntry { return f.scheduleCh }

func (f *Feeds) Course() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.course
}

// Retarget points both feeds at a course. The previous subscriptions
// are closed first and any buffered snapshots from them discarded. An
// empty course leaves the feeds idle. Subscription failures are
// logged; the feed stays quiet until the next retarget.
func (f *Feeds) Retarget(ctx context.Context, course string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if course == f.course {
		return
	}

	f.closeWatchersLocked()
	f.generation++
	f.course = course
	f.drainLocked()
	if course == "" {
		return
	}

	gen := f.generation
	filter := docstore.Filter{Field: courseField, Value: course}
	aw, err := f.store.WatchCollection(ctx, AssignmentsPath(f.appID), filter)
	if err != nil {
		f.log.Error("assignments subscription failed", "course", course, "error", err)
	} else {
		f.assignWatch = aw
		go f.pumpAssignments(aw, gen)
	}
	sw, err := f.store.WatchCollection(ctx, SchedulePath(f.appID), filter)
	if err != nil {
		f.log.Error("schedule subscription failed", "course", course, "error", err)
	} else {
		f.schedWatch = sw
		go f.pumpSchedule(sw, gen)
	}
	f.log.Info("feeds retargeted", "course", course)
}

func (f *Feeds) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeWatchersLocked()
	f.generation++
	f.course = ""
}

func (f *Feeds) closeWatchersLocked() {
	if f.assignWatch != nil {
		f.assignWatch.Close()
		f.assignWatch = nil
	}
	if f.schedWatch != nil {
		f.schedWatch.Close()
		f.schedWatch = nil
	}
}

func (f *Feeds) drainLocked() {
	select {
	case <-f.assignmentCh:
	default:
	}
	select {
	case <-f.scheduleCh:
	default:
	}
}

func (f *Feeds) pumpAssignments(w *docstore.CollectionWatcher, gen uint64) {
	for docs := range w.Snapshots() {
		list := ProjectAssignments(docs, f.log)
		f.mu.Lock()
		if gen != f.generation {
			f.mu.Unlock()
			return
		}
		pushAssignments(f.assignmentCh, list)
		f.mu.Unlock()
		metrics.SnapshotsDelivered.WithLabelValues("assignments").Inc()
	}
}

func (f *Feeds) pumpSchedule(w *docstore.CollectionWatcher, gen uint64) {
	for docs := range w.Snapshots() {
		list := ProjectSchedule(docs, f.log)
		f.mu.Lock()
		if gen != f.generation {
			f.mu.Unlock()
			return
		}
		pushSchedule(f.scheduleCh, list)
		f.mu.Unlock()
		metrics.SnapshotsDelivered.WithLabelValues("schedule").Inc()
	}
}

// Pushes below never block: all senders hold f.mu, so after the drain
// the single buffer slot is free.

func pushAssignments(ch chan []model.Assignment, list []model.Assignment) {
	select {
	case ch <- list:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}

func pushSchedule(ch chan []model.ScheduleEntry, list []model.ScheduleEntry) {
	select {
	case ch <- list:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}

// ProjectAssignments decodes a snapshot into the feed ordering:
// newest postedAt first, records without a postedAt last. Malformed
// records are logged and skipped.
func ProjectAssignments(docs []docstore.Document, logger *slog.Logger) []model.Assignment {
	list := make([]model.Assignment, 0, len(docs))
	for _, doc := range docs {
		var a model.Assignment
		if err := json.Unmarshal(doc.Data, &a); err != nil {
			logger.Warn("assignment record malformed", "id", doc.ID, "error", err)
			continue
		}
		a.ID = doc.ID
		if a.DueDate != nil && a.DueDate.IsZero() {
			a.DueDate = nil
		}
		list = append(list, a)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].PostedAt.After(list[j].PostedAt)
	})
	return list
}

// ProjectSchedule decodes a snapshot keeping store order. A missing
// time renders as "N/A".
func ProjectSchedule(docs []docstore.Document, logger *slog.Logger) []model.ScheduleEntry {
	list := make([]model.ScheduleEntry, 0, len(docs))
	for _, doc := range docs {
		var e model.ScheduleEntry
		if err := json.Unmarshal(doc.Data, &e); err != nil {
			logger.Warn("schedule record malformed", "id", doc.ID, "error", err)
			continue
		}
		e.ID = doc.ID
		if e.Time == "" {
			e.Time = "N/A"
		}
		list = append(list, e)
	}
	return list
}
