package mockdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bellweaver/internal/model"
	"bellweaver/internal/parser"
)

const committedDir = "../../" + DefaultDir

func TestCommittedCorpusValidates(t *testing.T) {
	rep, err := Validate(committedDir)
	if err != nil {
		t.Fatalf("committed corpus failed the integrity check: %v", err)
	}
	if rep.Events == 0 || rep.UserID == 0 {
		t.Fatalf("unexpected report %+v", rep)
	}

	events, err := ReadEvents(committedDir)
	if err != nil {
		t.Fatal(err)
	}
	valid, failed, err := parser.ParseSafe(parser.EventModel, events, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(valid) != len(events) || len(failed) != 0 {
		t.Fatalf("valid=%d failed=%d corpus=%d", len(valid), len(failed), len(events))
	}
}

func TestFallbackValidates(t *testing.T) {
	rep, err := Check(FallbackEvents(), FallbackUser())
	if err != nil {
		t.Fatalf("fallback sample failed validation: %v", err)
	}
	if rep.Events != 3 || rep.UserID != FallbackUserID {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestFallbackReturnsCopies(t *testing.T) {
	a := FallbackEvents()
	a[0]["title"] = "changed"
	if FallbackEvents()[0]["title"] == "changed" {
		t.Fatal("fallback events share state between calls")
	}
}

func TestWriteThenValidate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mock")
	now := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	if err := Write(dir, FallbackEvents(), FallbackUser(), SyntheticVersion(now)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rep, err := Validate(dir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rep.Version.Source != SourceSynthetic || !rep.Version.LastUpdated.Equal(now) {
		t.Fatalf("version = %+v", rep.Version)
	}
	info, err := os.Stat(filepath.Join(dir, EventsFile))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("perm = %v", info.Mode().Perm())
	}
	left, _ := filepath.Glob(filepath.Join(dir, ".bellweaver-mock-*"))
	if len(left) != 0 {
		t.Fatalf("temp files left behind: %v", left)
	}
}

func TestWriteRejectsBadVersion(t *testing.T) {
	v := SyntheticVersion(time.Now())
	v.Source = "scraped"
	if err := Write(t.TempDir(), FallbackEvents(), FallbackUser(), v); err == nil {
		t.Fatal("expected descriptor validation error")
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir string)
		file  string
		index int
	}{
		{
			name:  "missing events",
			setup: func(dir string) { os.Remove(filepath.Join(dir, EventsFile)) },
			file:  EventsFile,
			index: -1,
		},
		{
			name:  "events not an array",
			setup: func(dir string) { os.WriteFile(filepath.Join(dir, EventsFile), []byte(`{"a":1}`), 0o644) },
			file:  EventsFile,
			index: -1,
		},
		{
			name: "invalid event record",
			setup: func(dir string) {
				evs := FallbackEvents()
				delete(evs[1], "start")
				writeJSON(filepath.Join(dir, EventsFile), evs)
			},
			file:  EventsFile,
			index: 1,
		},
		{
			name:  "user is null",
			setup: func(dir string) { os.WriteFile(filepath.Join(dir, UserFile), []byte("null"), 0o644) },
			file:  UserFile,
			index: -1,
		},
		{
			name: "user missing id",
			setup: func(dir string) {
				u := FallbackUser()
				delete(u, "userId")
				writeJSON(filepath.Join(dir, UserFile), u)
			},
			file:  UserFile,
			index: -1,
		},
		{
			name:  "bad version",
			setup: func(dir string) { os.WriteFile(filepath.Join(dir, VersionFile), []byte(`{"version":"one"}`), 0o644) },
			file:  VersionFile,
			index: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := Write(dir, FallbackEvents(), FallbackUser(), SyntheticVersion(time.Now())); err != nil {
				t.Fatal(err)
			}
			tt.setup(dir)

			_, err := Validate(dir)
			var ierr *IntegrityError
			if !errors.As(err, &ierr) {
				t.Fatalf("expected *IntegrityError, got %v", err)
			}
			if ierr.File != tt.file || ierr.Index != tt.index {
				t.Fatalf("got file=%s index=%d, want %s/%d", ierr.File, ierr.Index, tt.file, tt.index)
			}
		})
	}
}

func TestReadEventsShape(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, EventsFile), []byte("[]"), 0o644)
	evs, err := ReadEvents(dir)
	if err != nil || evs == nil || len(evs) != 0 {
		t.Fatalf("empty array: %v %v", evs, err)
	}
	os.WriteFile(filepath.Join(dir, EventsFile), []byte("not json"), 0o644)
	if _, err := ReadEvents(dir); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBumpPatch(t *testing.T) {
	tests := map[string]string{
		"":             "1.0.0",
		"1.0.0":        "1.0.1",
		"2.3.9":        "2.3.10",
		"v1.2.3":       "1.2.4",
		"1.2.3-beta.1": "1.2.4",
	}
	for in, want := range tests {
		got, err := BumpPatch(in)
		if err != nil || got != want {
			t.Errorf("BumpPatch(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"1.2", "a.b.c", "1.2.x"} {
		if _, err := BumpPatch(bad); err == nil {
			t.Errorf("BumpPatch(%q): expected error", bad)
		}
	}
}

func TestCheckAcceptsCanonicalKeys(t *testing.T) {
	ev := model.Raw{}
	for k, v := range FallbackEvents()[0] {
		ev[k] = v
	}
	ev["instance_id"] = ev["instanceId"]
	delete(ev, "instanceId")
	if _, err := Check([]model.Raw{ev}, FallbackUser()); err != nil {
		t.Fatalf("hand-authored snake_case key rejected: %v", err)
	}
}
