package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-ap/errors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"bellweaver/internal/compass"
	"bellweaver/internal/config"
	"bellweaver/internal/ics"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/metrics"
	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
	"bellweaver/internal/store"
	"bellweaver/internal/syncer"
	"bellweaver/internal/web"
)

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "Runs the sync schedule and the HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "HTTP listen address (overrides config if set)",
		},
		&cli.BoolFlag{
			Name:  "no-initial-sync",
			Usage: "Wait for the first scheduled run instead of syncing at startup",
		},
	},
	Action: serve,
}

var fetchCmd = cli.Command{
	Name:  "fetch",
	Usage: "Runs one sync pass and exits",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "channel",
			Usage: "Which channels to sync (default all)",
		},
	},
	Action: fetch,
}

var exportCmd = cli.Command{
	Name:  "export",
	Usage: "Writes stored events as an iCalendar file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output, o",
			Usage: "Output file, - for stdout",
			Value: "-",
		},
		&cli.StringFlag{
			Name:  "channel",
			Usage: "Export a single channel (default all)",
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Days after today to include (default horizon_days)",
		},
		&cli.IntFlag{
			Name:  "backfill",
			Usage: "Days before today to include (default backfill_days)",
			Value: -1,
		},
		&cli.BoolFlag{
			Name:  "no-collapse",
			Usage: "Emit every occurrence instead of RRULE series",
		},
	},
	Action: export,
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func newSyncer(cfg *config.Config, st *store.Store, m *metrics.Metrics, channels []config.ChannelConfig) *syncer.Syncer {
	return syncer.New(syncer.Options{
		Channels:     channels,
		NewClient:    syncer.FactoryFromConfig(cfg),
		Store:        st,
		Metrics:      m,
		Location:     cfg.Location(),
		HorizonDays:  cfg.HorizonDays,
		BackfillDays: cfg.BackfillDays,
		Limit:        cfg.EventLimit,
	})
}

// checkMockCorpus validates the corpus when any channel runs in mock mode.
// A broken corpus is fatal only with mock_strict.
func checkMockCorpus(cfg *config.Config) error {
	usesMock := false
	for _, ch := range cfg.Channels {
		mode, err := compass.Options{Mode: ch.Mode, DefaultMode: cfg.CompassMode}.ResolveMode()
		if err != nil {
			return errors.Annotatef(err, "channel %s", ch.ID)
		}
		usesMock = usesMock || mode == compass.ModeMock
	}
	if !usesMock {
		return nil
	}

	report, err := mockdata.Validate(cfg.MockDataDir)
	if err != nil {
		if cfg.MockStrict {
			return errors.Annotatef(err, "mock corpus %s", cfg.MockDataDir)
		}
		appLog.Warn("mock corpus failed integrity check, fallback data will be served",
			"dir", cfg.MockDataDir, "err", err.Error())
		return nil
	}
	appLog.Info("mock corpus ok",
		"dir", cfg.MockDataDir,
		"events", report.Events,
		"version", report.Version.Version,
		"source", report.Version.Source,
	)
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if l := c.String("listen"); l != "" {
		cfg.Listen = l
	}
	if err := checkMockCorpus(cfg); err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	sy := newSyncer(cfg, st, m, cfg.Channels)
	srv := web.NewServer(cfg, st, m, sy)

	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if !c.Bool("no-initial-sync") {
		g.Go(func() error {
			if _, err := sy.RunOnce(ctx); err != nil {
				appLog.Warn("initial sync finished with errors", "err", err.Error())
			}
			return nil
		})
	}
	g.Go(func() error { return sy.Start(ctx, cfg.RefreshCron) })
	g.Go(func() error { return srv.Serve(ctx) })

	err = g.Wait()
	appLog.Info("bellweaver exiting")
	return err
}

// selectChannels returns the configured channels named by ids, or all of
// them when ids is empty.
func selectChannels(cfg *config.Config, ids []string) ([]config.ChannelConfig, error) {
	if len(ids) == 0 {
		return cfg.Channels, nil
	}
	out := make([]config.ChannelConfig, 0, len(ids))
	for _, id := range ids {
		ch, ok := cfg.Channel(id)
		if !ok {
			return nil, errors.Newf("unknown channel %q", id)
		}
		out = append(out, ch)
	}
	return out, nil
}

func fetch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	channels, err := selectChannels(cfg, c.StringSlice("channel"))
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return errors.Newf("no channels configured")
	}
	if err := checkMockCorpus(cfg); err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runs, err := newSyncer(cfg, st, nil, channels).RunOnce(ctx)
	printRuns(c.App.Writer, runs)
	return err
}

func printRuns(w io.Writer, runs []store.Run) {
	for _, r := range runs {
		status := "ok"
		if !r.OK() {
			status = r.Error
		}
		fmt.Fprintf(w, "%-16s fetched=%-4d stored=%-4d invalid=%-4d %s\n", r.Channel, r.Fetched, r.Stored, r.Invalid, status)
	}
}

func export(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	channel := c.String("channel")
	name := "Bellweaver"
	if channel != "" {
		ch, ok := cfg.Channel(channel)
		if !ok {
			return errors.Newf("unknown channel %q", channel)
		}
		if ch.Name != "" {
			name = ch.Name
		}
	}
	days := c.Int("days")
	if days <= 0 {
		days = cfg.HorizonDays
	}
	backfill := c.Int("backfill")
	if backfill < 0 {
		backfill = cfg.BackfillDays
	}
	days, backfill = config.ClampDays(days), config.ClampDays(backfill)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return errors.Annotatef(err, "open store (is serve running?)")
	}
	defer st.Close()

	loc := cfg.Location()
	today := compass.Today(loc)
	events, err := st.Events(channel, today.AddDays(-backfill).Time(loc), today.AddDays(days+1).Time(loc))
	if err != nil {
		return err
	}

	err = writeCalendar(c.String("output"), c.App.Writer, events, ics.Options{
		Name:     name,
		Location: loc,
		Collapse: !c.Bool("no-collapse"),
	})
	if err != nil {
		return err
	}
	appLog.Info("calendar exported", "events", len(events), "channel", channel, "output", c.String("output"))
	return nil
}

// writeCalendar writes events to path, or to stdout when path is "-". The
// file is closed before returning so a failed flush is reported.
func writeCalendar(path string, stdout io.Writer, events []model.Event, opts ics.Options) error {
	if path == "-" {
		if err := ics.Write(stdout, events, opts); err != nil {
			return errors.Annotatef(err, "write calendar")
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Annotatef(err, "create %s", path)
	}
	if err := ics.Write(f, events, opts); err != nil {
		f.Close()
		return errors.Annotatef(err, "write calendar %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Annotatef(err, "close %s", path)
	}
	return nil
}
