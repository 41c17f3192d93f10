package main

import (
	"fmt"
	"os"

	"github.com/go-ap/errors"
	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"bellweaver/internal/config"
	appLog "bellweaver/internal/log"
)

const (
	appName    = "bellweaver"
	appVersion = "0.3.0"
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Compass calendar sync and mock corpus tooling"
	app.Version = appVersion
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config file",
			Value: "/etc/bellweaver/config.yaml",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Dotenv file loaded before the config (missing file is ignored)",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Client mode for all channels without their own (real or mock)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Output debug messages",
		},
	}
	app.Before = loadEnv
	app.Commands = []cli.Command{
		serveCmd,
		fetchCmd,
		exportCmd,
		mockCmd,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// loadEnv populates the process environment from the dotenv file. Variables
// already set win.
func loadEnv(c *cli.Context) error {
	path := c.GlobalString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return errors.Annotatef(err, "env file %s", path)
	}
	return nil
}

// loadConfig reads the config file, overlays COMPASS_MODE and --mode, and
// configures logging. It is the only place the environment is consulted
// for the client mode.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Annotatef(err, "load config")
	}
	cfg.ApplyEnv(os.Getenv)
	if mode := c.GlobalString("mode"); mode != "" {
		cfg.CompassMode = mode
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotatef(err, "config %s", path)
	}

	level := appLog.ParseLevel(cfg.LogLevel)
	if c.GlobalBool("debug") {
		level = appLog.LevelDebug
	}
	appLog.Configure(os.Stderr, cfg.LogFormat, level)

	appLog.Info("effective config",
		"config_path", path,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"compass_mode", cfg.CompassMode,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"channels", len(cfg.Channels),
		"store_path", cfg.StorePath,
	)
	return cfg, nil
}
