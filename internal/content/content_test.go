package content

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"lectern/portal/internal/docstore"
	"lectern/portal/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doc(t *testing.T, id string, v any) docstore.Document {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return docstore.Document{ID: id, Data: data}
}

func TestProjectAssignmentsSortsNewestFirst(t *testing.T) {
	older := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	docs := []docstore.Document{
		doc(t, "a", model.Assignment{Title: "older", PostedAt: older}),
		doc(t, "b", model.Assignment{Title: "undated"}),
		doc(t, "c", model.Assignment{Title: "newer", PostedAt: newer}),
	}

	list := ProjectAssignments(docs, discardLogger())
	if len(list) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(list))
	}
	titles := []string{list[0].Title, list[1].Title, list[2].Title}
	if titles[0] != "newer" || titles[1] != "older" || titles[2] != "undated" {
		t.Fatalf("expected newest first with undated last, got %v", titles)
	}
	if list[0].ID != "c" {
		t.Fatalf("expected document id carried over, got %s", list[0].ID)
	}
}

func TestProjectAssignmentsSkipsMalformed(t *testing.T) {
	docs := []docstore.Document{
		{ID: "bad", Data: json.RawMessage(`{"title":`)},
		doc(t, "good", model.Assignment{Title: "ok"}),
	}

	list := ProjectAssignments(docs, discardLogger())
	if len(list) != 1 || list[0].Title != "ok" {
		t.Fatalf("expected malformed record skipped, got %+v", list)
	}
}

func TestProjectScheduleDefaultsTime(t *testing.T) {
	docs := []docstore.Document{
		doc(t, "a", model.ScheduleEntry{Location: "SW-305", Time: "9:00-10:30", Day: "Monday"}),
		doc(t, "b", model.ScheduleEntry{Location: "SW-120", Day: "Tuesday"}),
	}

	list := ProjectSchedule(docs, discardLogger())
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].Location != "SW-305" || list[1].Location != "SW-120" {
		t.Fatalf("expected store order preserved, got %+v", list)
	}
	if list[0].Time != "9:00-10:30" {
		t.Fatalf("expected explicit time kept, got %s", list[0].Time)
	}
	if list[1].Time != "N/A" {
		t.Fatalf("expected missing time rendered as N/A, got %q", list[1].Time)
	}
}

func waitAssignments(t *testing.T, f *Feeds, want int) []model.Assignment {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case list := <-f.Assignments():
			if len(list) == want {
				return list
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d assignments", want)
		}
	}
}

func TestFeedsDeliverMatchingCourse(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	f := NewFeeds(store, "portal", discardLogger())
	defer f.Close()

	f.Retarget(ctx, "CS101")

	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "hw1", Course: "CS101", PostedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	list := waitAssignments(t, f, 1)
	if list[0].Title != "hw1" {
		t.Fatalf("expected posted assignment, got %+v", list[0])
	}

	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "other", Course: "MATH201"}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	select {
	case list := <-f.Assignments():
		t.Fatalf("expected no delivery for other course, got %d items", len(list))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedsRetargetSwitchesCourse(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	f := NewFeeds(store, "portal", discardLogger())
	defer f.Close()

	f.Retarget(ctx, "CS101")
	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "cs-hw", Course: "CS101"}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	waitAssignments(t, f, 1)

	f.Retarget(ctx, "MATH201")
	if got := f.Course(); got != "MATH201" {
		t.Fatalf("expected retargeted course, got %s", got)
	}

	// Writes to the old course must stay invisible after the switch.
	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "cs-hw2", Course: "CS101"}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "math-hw", Course: "MATH201"}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	list := waitAssignments(t, f, 1)
	if list[0].Title != "math-hw" {
		t.Fatalf("expected only new course content, got %+v", list[0])
	}
}

func TestFeedsIdleWithoutCourse(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	f := NewFeeds(store, "portal", discardLogger())
	defer f.Close()

	f.Retarget(ctx, "")
	if _, err := store.AddRecord(ctx, AssignmentsPath("portal"), model.Assignment{Title: "hw", Course: "CS101"}); err != nil {
		t.Fatalf("add error: %v", err)
	}
	select {
	case list := <-f.Assignments():
		t.Fatalf("expected idle feed, got %d items", len(list))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedsScheduleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	f := NewFeeds(store, "portal", discardLogger())
	defer f.Close()

	f.Retarget(ctx, "CS101")
	if _, err := store.AddRecord(ctx, SchedulePath("portal"), model.ScheduleEntry{Course: "CS101", Location: "SW-305", Day: "Monday"}); err != nil {
		t.Fatalf("add error: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case list := <-f.Schedule():
			if len(list) == 1 {
				if list[0].Time != "N/A" {
					t.Fatalf("expected defaulted time, got %q", list[0].Time)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for schedule snapshot")
		}
	}
}
