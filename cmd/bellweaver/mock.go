package main

import (
	"fmt"
	"time"

	"github.com/go-ap/errors"
	"github.com/urfave/cli"

	"bellweaver/internal/browser"
	"bellweaver/internal/compass"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/mockdata"
	"bellweaver/internal/refresh"
)

var mockCmd = cli.Command{
	Name:  "mock",
	Usage: "Manages the mock corpus",
	Subcommands: []cli.Command{
		mockValidateCmd,
		mockRefreshCmd,
		mockInitCmd,
	},
}

var dirFlag = &cli.StringFlag{
	Name:  "dir",
	Usage: "Corpus directory (default mock_data_dir from the config)",
}

var mockValidateCmd = cli.Command{
	Name:   "validate",
	Usage:  "Checks every corpus record against the current models",
	Flags:  []cli.Flag{dirFlag},
	Action: mockValidate,
}

var mockRefreshCmd = cli.Command{
	Name:  "refresh",
	Usage: "Replaces the corpus with sanitized data from a live account",
	Flags: []cli.Flag{
		dirFlag,
		&cli.StringFlag{
			Name:   "base-url",
			Usage:  "School Compass URL",
			EnvVar: "COMPASS_BASE_URL",
		},
		&cli.StringFlag{
			Name:   "username",
			EnvVar: "COMPASS_USERNAME",
		},
		&cli.StringFlag{
			Name:   "password",
			EnvVar: "COMPASS_PASSWORD",
		},
		&cli.BoolFlag{
			Name:  "browser",
			Usage: "Log in through headless Chromium instead of plain HTTP",
		},
		&cli.BoolTFlag{
			Name:  "headless",
			Usage: "Hide the browser window (with --browser)",
		},
		&cli.StringFlag{
			Name:  "chrome-path",
			Usage: "Chromium binary (with --browser)",
		},
		&cli.BoolFlag{
			Name:  "skip-sanitize",
			Usage: "Keep personal fields as fetched",
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Days from today to fetch",
			Value: 30,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum events to fetch",
			Value: 100,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout (default http_timeout, or 60s with --browser)",
		},
	},
	Action: mockRefresh,
}

var mockInitCmd = cli.Command{
	Name:  "init",
	Usage: "Writes the built-in sample as a synthetic corpus",
	Flags: []cli.Flag{
		dirFlag,
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite an existing corpus",
		},
	},
	Action: mockInit,
}

// corpusDir resolves --dir against the config.
func corpusDir(c *cli.Context) (string, error) {
	if dir := c.String("dir"); dir != "" {
		return dir, nil
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return "", err
	}
	return cfg.MockDataDir, nil
}

func mockValidate(c *cli.Context) error {
	dir, err := corpusDir(c)
	if err != nil {
		return err
	}
	report, err := mockdata.Validate(dir)
	if err != nil {
		return errors.Annotatef(err, "corpus %s", dir)
	}
	fmt.Fprintf(c.App.Writer, "corpus %s ok: %d events, user %d, version %s (%s, updated %s)\n",
		dir, report.Events, report.UserID, report.Version.Version, report.Version.Source,
		report.Version.LastUpdated.Format(time.RFC3339))
	return nil
}

func mockRefresh(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := c.String("dir")
	if dir == "" {
		dir = cfg.MockDataDir
	}

	base, user, pass := c.String("base-url"), c.String("username"), c.String("password")
	if base == "" || user == "" || pass == "" {
		return errors.Newf("base URL, username and password are required (flags or COMPASS_BASE_URL, COMPASS_USERNAME, COMPASS_PASSWORD)")
	}

	var client compass.Client
	if c.Bool("browser") {
		client = browser.New(base, user, pass, browser.Options{
			Headless: c.BoolT("headless"),
			ExecPath: c.String("chrome-path"),
			Timeout:  c.Duration("timeout"),
		})
	} else {
		timeout := c.Duration("timeout")
		if timeout <= 0 {
			timeout = time.Duration(cfg.HTTPTimeout)
		}
		client, err = compass.NewHTTPClient(base, user, pass, timeout)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := refresh.Run(ctx, client, refresh.Options{
		Dir:          dir,
		Days:         c.Int("days"),
		Limit:        c.Int("limit"),
		SkipSanitize: c.Bool("skip-sanitize"),
		Location:     cfg.Location(),
	})
	if err != nil {
		return errors.Annotatef(err, "refresh corpus %s", dir)
	}
	fmt.Fprintf(c.App.Writer, "corpus %s refreshed: %d events, version %s -> %s\n",
		dir, res.Report.Events, res.Previous, res.Report.Version.Version)
	return nil
}

func mockInit(c *cli.Context) error {
	dir, err := corpusDir(c)
	if err != nil {
		return err
	}
	if v, err := mockdata.ReadVersion(dir); err == nil && !c.Bool("force") {
		return errors.Newf("corpus %s already exists (version %s), use --force to overwrite", dir, v.Version)
	}

	v := mockdata.SyntheticVersion(time.Now())
	if err := mockdata.Write(dir, mockdata.FallbackEvents(), mockdata.FallbackUser(), v); err != nil {
		return errors.Annotatef(err, "write corpus %s", dir)
	}
	appLog.Info("synthetic corpus written", "dir", dir, "version", v.Version)
	return nil
}
