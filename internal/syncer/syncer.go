// Package syncer pulls calendar events from every configured channel,
// validates them and writes the valid ones to the store.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/go-ap/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"bellweaver/internal/compass"
	"bellweaver/internal/config"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/metrics"
	"bellweaver/internal/parser"
	"bellweaver/internal/store"
)

// ErrBusy is returned when a channel is already being synced.
var ErrBusy = errors.Newf("sync already running")

// ClientFactory builds a fresh, unauthenticated client for one channel.
type ClientFactory func(ch config.ChannelConfig) (compass.Client, error)

// FactoryFromConfig resolves each channel's client through compass.NewClient
// with the process-wide mode from cfg as the default.
func FactoryFromConfig(cfg *config.Config) ClientFactory {
	return func(ch config.ChannelConfig) (compass.Client, error) {
		return compass.NewClient(ch.BaseURL, ch.Username, ch.Secret(), compass.Options{
			Mode:        ch.Mode,
			DefaultMode: cfg.CompassMode,
			Timeout:     time.Duration(cfg.HTTPTimeout),
			MockDataDir: cfg.MockDataDir,
		})
	}
}

// Options configures a Syncer.
type Options struct {
	Channels  []config.ChannelConfig
	NewClient ClientFactory
	Store     *store.Store
	// Metrics is optional.
	Metrics *metrics.Metrics

	// Location anchors "today" and naive Compass timestamps.
	Location     *time.Location
	HorizonDays  int
	BackfillDays int
	Limit        int

	Now func() time.Time
}

// Syncer runs sync passes on demand or on a cron schedule.
type Syncer struct {
	opts Options

	mu      sync.Mutex
	running map[string]bool
}

// New returns a Syncer with defaults applied.
func New(opts Options) *Syncer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 30
	}
	if opts.BackfillDays < 0 {
		opts.BackfillDays = 0
	}
	if opts.Limit <= 0 {
		opts.Limit = 500
	}
	return &Syncer{opts: opts, running: make(map[string]bool)}
}

// RunOnce syncs all channels concurrently, each with its own client. A
// failing channel does not stop the others; the first error is returned
// after all have finished.
func (s *Syncer) RunOnce(ctx context.Context) ([]store.Run, error) {
	runs := make([]store.Run, len(s.opts.Channels))
	var g errgroup.Group
	for i, ch := range s.opts.Channels {
		i, ch := i, ch
		g.Go(func() error {
			run, err := s.SyncChannel(ctx, ch)
			runs[i] = run
			return err
		})
	}
	err := g.Wait()
	return runs, err
}

// SyncChannel performs one sync for ch and records the run. The returned
// run is populated even when err is non-nil.
func (s *Syncer) SyncChannel(ctx context.Context, ch config.ChannelConfig) (store.Run, error) {
	if !s.acquire(ch.ID) {
		appLog.Warn("sync skipped, previous run still active", "channel", ch.ID)
		return store.Run{Channel: ch.ID}, ErrBusy
	}
	defer s.release(ch.ID)

	run := store.NewRun(ch.ID, s.opts.Now())
	err := s.sync(ctx, ch, &run)
	run.FinishedAt = s.opts.Now()
	if err != nil {
		run.Error = err.Error()
		appLog.Error("sync failed", err, "channel", ch.ID, "run_id", run.ID.String())
	} else {
		appLog.Info("sync completed", "channel", ch.ID, "run_id", run.ID.String(),
			"fetched", run.Fetched, "stored", run.Stored, "invalid", run.Invalid)
	}

	if s.opts.Store != nil {
		if rerr := s.opts.Store.RecordRun(run); rerr != nil {
			appLog.Error("sync run not recorded", rerr, "channel", ch.ID)
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveSync(ch.ID, run.FinishedAt, run.FinishedAt.Sub(run.StartedAt), run.Stored, run.Invalid, err)
	}
	return run, err
}

func (s *Syncer) sync(ctx context.Context, ch config.ChannelConfig, run *store.Run) error {
	client, err := s.opts.NewClient(ch)
	if err != nil {
		return errors.Annotatef(err, "channel %s", ch.ID)
	}
	defer client.Close()

	if _, err := client.Login(ctx); err != nil {
		return errors.Annotatef(err, "channel %s", ch.ID)
	}

	today := compass.DateOf(s.opts.Now().In(s.opts.Location))
	start, end := today.AddDays(-s.opts.BackfillDays), today.AddDays(s.opts.HorizonDays)
	raws, err := client.GetCalendarEvents(ctx, start, end, s.opts.Limit)
	if err != nil {
		return errors.Annotatef(err, "channel %s", ch.ID)
	}
	run.Fetched = len(raws)

	valid, failed, err := parser.ParseSafe(parser.EventModel.In(s.opts.Location), raws, true)
	if err != nil {
		return errors.Annotatef(err, "channel %s", ch.ID)
	}
	for _, f := range failed {
		appLog.Warn("sync dropped invalid event", "channel", ch.ID, "index", f.Index, "err", f.Error())
	}
	run.Stored, run.Invalid = len(valid), len(failed)

	if s.opts.Store == nil {
		return nil
	}
	from, to := start.Time(s.opts.Location), end.AddDays(1).Time(s.opts.Location)
	if _, err := s.opts.Store.ReplaceRange(ch.ID, from, to, valid); err != nil {
		return errors.Annotatef(err, "channel %s", ch.ID)
	}
	return nil
}

func (s *Syncer) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Syncer) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// Start runs RunOnce on the cron schedule spec until ctx is cancelled. It
// blocks and waits for an in-flight run to finish before returning.
func (s *Syncer) Start(ctx context.Context, spec string) error {
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			appLog.Warn("scheduled sync finished with errors", "err", err.Error())
		}
	})
	if err != nil {
		return errors.Annotatef(err, "invalid refresh schedule %q", spec)
	}

	appLog.Info("sync scheduler started", "schedule", spec, "channels", len(s.opts.Channels))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("sync scheduler stopped")
	return nil
}

// cronLogger routes cron's internal logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) { appLog.Debug("cron "+msg, kv...) }

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron "+msg, err, kv...)
}
