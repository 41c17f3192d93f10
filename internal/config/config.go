package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ModeEnv is the process-wide client mode variable. It is read once, by
// ApplyEnv, and flows into the client factory as a default.
const ModeEnv = "COMPASS_MODE"

// MaxWindowDays caps every day count around today: the synced horizon and
// backfill, and the windows requested over HTTP or on the command line.
const MaxWindowDays = 366

// ClampDays bounds a day count to [0, MaxWindowDays].
func ClampDays(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxWindowDays {
		return MaxWindowDays
	}
	return n
}

// ChannelConfig is one Compass tenant to sync.
type ChannelConfig struct {
	// ID is an internal identifier used as the store bucket and in logs.
	ID string `yaml:"id" json:"id" validate:"required,max=64"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// BaseURL is the tenant root, e.g. https://school.compass.education.
	BaseURL  string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Username string `yaml:"username" json:"username"`
	// Password may be left empty when PasswordEnv names a variable holding it.
	Password    string `yaml:"password" json:"-"`
	PasswordEnv string `yaml:"password_env,omitempty" json:"password_env,omitempty"`
	// Mode overrides the process-wide client mode for this channel.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=real mock"`
}

// Secret returns the channel password, preferring PasswordEnv when set.
func (c ChannelConfig) Secret() string {
	if c.PasswordEnv != "" {
		if v := os.Getenv(c.PasswordEnv); v != "" {
			return v
		}
	}
	return c.Password
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
}

// Duration is a time.Duration that reads and writes as "10s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA zone used for date ranges and for Compass
	// timestamps that carry no offset.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" json:"log_format" validate:"oneof=text json"`

	// CompassMode is the process-wide client mode: "real" or "mock".
	CompassMode string `yaml:"compass_mode" json:"compass_mode" validate:"omitempty,oneof=real mock"`
	// MockDataDir is the mock corpus directory.
	MockDataDir string `yaml:"mock_data_dir" json:"mock_data_dir"`
	// MockStrict makes a failing corpus integrity check fatal at startup;
	// otherwise it is logged and the mock client falls back.
	MockStrict bool `yaml:"mock_strict" json:"mock_strict"`

	// HTTPTimeout bounds every Compass network call.
	HTTPTimeout Duration `yaml:"http_timeout" json:"http_timeout"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required"`

	// HorizonDays and BackfillDays bound the synced range around today.
	// Both are capped at MaxWindowDays.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days" validate:"gte=1,lte=366"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days" validate:"gte=0,lte=366"`
	// EventLimit caps the events requested per sync.
	EventLimit int `yaml:"event_limit" json:"event_limit" validate:"gte=1,lte=5000"`

	// StorePath is the bbolt database file.
	StorePath string `yaml:"store_path" json:"store_path" validate:"required"`

	Channels []ChannelConfig `yaml:"channels" json:"channels" validate:"dive"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Australia/Melbourne",
		LogLevel:     "info",
		LogFormat:    "text",
		CompassMode:  "real",
		MockDataDir:  "data/mock",
		HTTPTimeout:  Duration(10 * time.Second),
		RefreshCron:  "*/30 * * * *",
		HorizonDays:  30,
		BackfillDays: 7,
		EventLimit:   500,
		StorePath:    "var/bellweaver.db",
		Channels:     []ChannelConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	c.CompassMode = strings.ToLower(strings.TrimSpace(c.CompassMode))
	if c.MockDataDir == "" {
		c.MockDataDir = d.MockDataDir
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.EventLimit <= 0 {
		c.EventLimit = d.EventLimit
	}
	if c.StorePath == "" {
		c.StorePath = d.StorePath
	}
	if c.Channels == nil {
		c.Channels = []ChannelConfig{}
	}
	for i := range c.Channels {
		c.Channels[i].Mode = strings.ToLower(strings.TrimSpace(c.Channels[i].Mode))
		c.Channels[i].BaseURL = strings.TrimRight(c.Channels[i].BaseURL, "/")
	}
}

var validate = validator.New()

// Validate checks field constraints, channel ID uniqueness and the timezone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

// Location returns the configured zone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Channel looks up a channel by ID.
func (c *Config) Channel(id string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// ApplyEnv overlays process environment onto the loaded file. Only the
// client mode is read here; it is the single place the variable is consulted.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(ModeEnv)); v != "" {
		c.CompassMode = strings.ToLower(v)
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since channels carry passwords.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".bellweaver-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
