package store

import (
	"path/filepath"
	"testing"
	"time"

	"bellweaver/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bellweaver.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ev(id string, start time.Time) model.Event {
	return model.Event{InstanceID: id, Title: "Event " + id, Start: start, Finish: start.Add(time.Hour)}
}

func day(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

func ids(evs []model.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.InstanceID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReplaceRangeAndEvents(t *testing.T) {
	s := openTemp(t)
	aest := time.FixedZone("AEST", 10*3600)

	first := []model.Event{
		ev("b", day(5).Add(9*time.Hour)),
		ev("a", day(2).Add(9*time.Hour)),
		ev("c", day(9).Add(9*time.Hour)),
		ev("old", day(1).Add(-time.Hour)),
	}
	if _, err := s.ReplaceRange("school", day(1), day(10), first); err != nil {
		t.Fatalf("ReplaceRange: %v", err)
	}

	got, err := s.Events("school", day(1), day(10))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b", "c"}; !equal(ids(got), want) {
		t.Fatalf("events = %v, want %v", ids(got), want)
	}
	if got[0].Title != "Event a" {
		t.Fatalf("decoded title = %q", got[0].Title)
	}

	// b was cancelled upstream and d is new; c lies outside the new window.
	second := []model.Event{ev("a", day(2).Add(9*time.Hour)), ev("d", time.Date(2025, 3, 6, 9, 0, 0, 0, aest))}
	removed, err := s.ReplaceRange("school", day(1), day(8), second)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	got, err = s.Events("school", day(1), day(10))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "d", "c"}; !equal(ids(got), want) {
		t.Fatalf("events = %v, want %v", ids(got), want)
	}

	all, err := s.Events("school", day(1).Add(-24*time.Hour), day(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("with backfill got %v", ids(all))
	}
}

func TestEventsAcrossChannels(t *testing.T) {
	s := openTemp(t)
	if _, err := s.ReplaceRange("one", day(1), day(5), []model.Event{ev("x", day(3))}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReplaceRange("two", day(1), day(5), []model.Event{ev("y", day(2))}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Events("", day(1), day(5))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"y", "x"}; !equal(ids(got), want) {
		t.Fatalf("merged = %v, want %v", ids(got), want)
	}

	none, err := s.Events("missing", day(1), day(5))
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown channel = %v, %v", none, err)
	}

	chans, err := s.Channels()
	if err != nil {
		t.Fatal(err)
	}
	if !equal(chans, []string{"one", "two"}) {
		t.Fatalf("channels = %v", chans)
	}

	if _, err := s.ReplaceRange("", day(1), day(2), nil); err == nil {
		t.Fatal("expected error for empty channel")
	}
}

func TestRuns(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	if _, ok, err := s.LastRun("school"); ok || err != nil {
		t.Fatalf("LastRun on empty store = %v, %v", ok, err)
	}

	var recorded []Run
	for i := 0; i < 3; i++ {
		r := NewRun("school", base.Add(time.Duration(i)*time.Minute))
		r.FinishedAt = r.StartedAt.Add(time.Second)
		r.Fetched, r.Stored, r.Invalid = 10, 10-i, i
		if i == 2 {
			r.Error = "compass get_calendar_events fetch: boom"
		}
		if err := s.RecordRun(r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
		recorded = append(recorded, r)
	}
	other := NewRun("other", base.Add(90*time.Second))
	if err := s.RecordRun(other); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs("school", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != recorded[2].ID || runs[1].ID != recorded[1].ID {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].OK() || !runs[1].OK() {
		t.Fatal("OK() does not reflect Error")
	}

	last, ok, err := s.LastRun("")
	if err != nil || !ok || last.ID != recorded[2].ID {
		t.Fatalf("LastRun(all) = %+v, %v, %v", last, ok, err)
	}

	all, err := s.Runs("", 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("all runs = %d, %v", len(all), err)
	}
	if all[1].ID != other.ID {
		t.Fatalf("runs not merged by start time: %+v", all)
	}

	if err := s.RecordRun(Run{Channel: "x"}); err == nil {
		t.Fatal("expected error for run without id")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReplaceRange("c", day(1), day(2), []model.Event{ev("keep", day(1))}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Events("c", day(1), day(2))
	if err != nil || len(got) != 1 {
		t.Fatalf("after reopen = %v, %v", ids(got), err)
	}
}
