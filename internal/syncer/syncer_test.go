package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bellweaver/internal/compass"
	"bellweaver/internal/config"
	"bellweaver/internal/metrics"
	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
	"bellweaver/internal/store"
)

var fixedNow = func() time.Time { return time.Date(2025, 12, 14, 6, 0, 0, 0, time.UTC) }

type stubClient struct {
	events []model.Raw
	closed bool
}

func (s *stubClient) Login(context.Context) (bool, error) { return true, nil }

func (s *stubClient) GetUserDetails(context.Context, *int) (model.Raw, error) {
	return mockdata.FallbackUser(), nil
}

func (s *stubClient) GetCalendarEvents(context.Context, compass.Date, compass.Date, int) ([]model.Raw, error) {
	return s.events, nil
}

func (s *stubClient) Close() error {
	s.closed = true
	return nil
}

func corpusDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := mockdata.Write(dir, mockdata.FallbackEvents(), mockdata.FallbackUser(), mockdata.SyntheticVersion(fixedNow())); err != nil {
		t.Fatal(err)
	}
	return dir
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunOnce(t *testing.T) {
	dir := corpusDir(t)
	st := openStore(t)
	m := metrics.New()

	mixed := mockdata.FallbackEvents()
	delete(mixed[1], "title")
	stub := &stubClient{events: mixed}

	s := New(Options{
		Channels: []config.ChannelConfig{{ID: "mock"}, {ID: "mixed"}, {ID: "broken"}},
		NewClient: func(ch config.ChannelConfig) (compass.Client, error) {
			switch ch.ID {
			case "mock":
				return compass.NewMockClient(dir), nil
			case "mixed":
				return stub, nil
			}
			return nil, errors.New("no client for channel")
		},
		Store:       st,
		Metrics:     m,
		Location:    time.UTC,
		HorizonDays: 10,
		Now:         fixedNow,
	})

	runs, err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected the broken channel to fail")
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs", len(runs))
	}
	if r := runs[0]; r.Error != "" || r.Fetched != 3 || r.Stored != 3 || r.Invalid != 0 {
		t.Errorf("mock run = %+v", r)
	}
	if r := runs[1]; r.Error != "" || r.Fetched != 3 || r.Stored != 2 || r.Invalid != 1 {
		t.Errorf("mixed run = %+v", r)
	}
	if r := runs[2]; r.Error == "" || r.OK() {
		t.Errorf("broken run = %+v", r)
	}
	if !stub.closed {
		t.Error("client not closed after sync")
	}

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	for ch, want := range map[string]int{"mock": 3, "mixed": 2, "broken": 0} {
		evs, err := st.Events(ch, from, to)
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) != want {
			t.Errorf("channel %s stored %d events, want %d", ch, len(evs), want)
		}
	}

	recorded, err := st.Runs("", 0)
	if err != nil || len(recorded) != 3 {
		t.Fatalf("recorded runs = %d, %v", len(recorded), err)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "bellweaver_sync_runs_total"); err != nil || n != 3 {
		t.Errorf("sync_runs_total series = %d, %v", n, err)
	}
}

func TestSyncChannelWindow(t *testing.T) {
	st := openStore(t)
	s := New(Options{
		NewClient: func(config.ChannelConfig) (compass.Client, error) {
			return compass.NewMockClient(corpusDir(t)), nil
		},
		Store:       st,
		Location:    time.UTC,
		HorizonDays: 4,
		Now:         fixedNow,
	})

	// Dec 14 to Dec 18 inclusive keeps the 15th and 18th and drops the 20th.
	run, err := s.SyncChannel(context.Background(), config.ChannelConfig{ID: "school"})
	if err != nil {
		t.Fatalf("SyncChannel: %v", err)
	}
	if run.Fetched != 2 || run.Stored != 2 {
		t.Fatalf("run = %+v", run)
	}
	last, ok, err := st.LastRun("school")
	if err != nil || !ok || last.ID != run.ID {
		t.Fatalf("LastRun = %+v, %v, %v", last, ok, err)
	}
}

func TestSyncChannelBusy(t *testing.T) {
	s := New(Options{NewClient: func(config.ChannelConfig) (compass.Client, error) {
		t.Fatal("client built while busy")
		return nil, nil
	}})
	if !s.acquire("school") {
		t.Fatal("acquire failed")
	}
	if _, err := s.SyncChannel(context.Background(), config.ChannelConfig{ID: "school"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v", err)
	}
	s.release("school")
	if !s.acquire("school") {
		t.Fatal("release did not free the channel")
	}
}

func TestSyncLoginFailure(t *testing.T) {
	c := compass.NewMockClient(corpusDir(t))
	c.Close()
	s := New(Options{
		NewClient: func(config.ChannelConfig) (compass.Client, error) { return c, nil },
		Now:       fixedNow,
	})

	run, err := s.SyncChannel(context.Background(), config.ChannelConfig{ID: "x"})
	if !compass.IsKind(err, compass.KindAuth) || !errors.Is(err, compass.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if run.Error == "" || run.FinishedAt.IsZero() {
		t.Fatalf("run = %+v", run)
	}
}

func TestStart(t *testing.T) {
	s := New(Options{Now: fixedNow})
	if err := s.Start(context.Background(), "not a schedule"); err == nil {
		t.Fatal("expected schedule error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "@every 1h") }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFactoryFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CompassMode = "mock"
	cfg.MockDataDir = corpusDir(t)
	f := FactoryFromConfig(cfg)

	c, err := f(config.ChannelConfig{ID: "a", BaseURL: "https://s.example"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*compass.MockClient); !ok {
		t.Fatalf("default mode gave %T", c)
	}

	c, err = f(config.ChannelConfig{ID: "b", BaseURL: "https://s.example", Mode: "real"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*compass.HTTPClient); !ok {
		t.Fatalf("channel mode gave %T", c)
	}

	if _, err := f(config.ChannelConfig{ID: "c", Mode: "sideways"}); !compass.IsKind(err, compass.KindConfig) {
		t.Fatalf("invalid mode err = %v", err)
	}
}
