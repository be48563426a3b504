package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Environment variables that override file values.
const (
	EnvListen  = "PEOPLECAL_LISTEN"
	EnvDataDir = "PEOPLECAL_DATA_DIR"
)

// ImportConfig describes a calendar feed whose birthdays are imported.
type ImportConfig struct {
	// URL is the ICS endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RemindersConfig is the derivation policy.
type RemindersConfig struct {
	// WindowDays is how far ahead birthdays are listed.
	WindowDays int `yaml:"window_days" json:"window_days"`
	// OverdueThresholdDays is the minimum days overdue before a contact
	// reminder shows. Never-contacted people always show.
	OverdueThresholdDays int `yaml:"overdue_threshold_days" json:"overdue_threshold_days"`
}

// TasksConfig controls birthday task creation.
type TasksConfig struct {
	// Refresh is a cron expression (e.g. "0 8 * * *") for the periodic
	// reminder check. Empty disables the scheduler.
	Refresh string `yaml:"refresh" json:"refresh"`
	// SettleDelay is waited after a completion notification before acting.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
	// Dedupe skips creating a task that already exists on the same day.
	Dedupe *bool `yaml:"dedupe,omitempty" json:"dedupe,omitempty"`
	// TaskTag classifies created entries.
	TaskTag string `yaml:"task_tag" json:"task_tag"`
	// DateFormat is the Go time layout naming date containers.
	DateFormat string `yaml:"date_format" json:"date_format"`
}

// DedupeEnabled reports the effective dedupe setting (default true).
func (t TasksConfig) DedupeEnabled() bool {
	return t.Dedupe == nil || *t.Dedupe
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone that defines "today" (e.g. "Europe/Berlin").
	// Empty means the system local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds the SQLite database and feed cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// PersonTag is the tag carried by person records.
	PersonTag string `yaml:"person_tag" json:"person_tag"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Reminders RemindersConfig `yaml:"reminders" json:"reminders"`
	Tasks     TasksConfig     `yaml:"tasks" json:"tasks"`

	// Imports lists calendar feeds to import birthdays from.
	Imports []ImportConfig `yaml:"imports" json:"imports"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "",
		DataDir:   defaultDataDir(),
		PersonTag: "person",
		LogLevel:  "INFO",
		Reminders: RemindersConfig{
			WindowDays:           30,
			OverdueThresholdDays: 0,
		},
		Tasks: TasksConfig{
			Refresh:     "0 8 * * *",
			SettleDelay: 500 * time.Millisecond,
			TaskTag:     "task",
			DateFormat:  "2006-01-02",
		},
		Imports:   []ImportConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.PersonTag == "" {
		c.PersonTag = def.PersonTag
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
		// ok
	default:
		c.LogLevel = def.LogLevel
	}
	if c.Reminders.WindowDays <= 0 {
		c.Reminders.WindowDays = def.Reminders.WindowDays
	}
	if c.Tasks.SettleDelay < 0 {
		c.Tasks.SettleDelay = 0
	}
	if c.Tasks.TaskTag == "" {
		c.Tasks.TaskTag = def.Tasks.TaskTag
	}
	if c.Tasks.DateFormat == "" {
		c.Tasks.DateFormat = def.Tasks.DateFormat
	}
	if c.Imports == nil {
		c.Imports = []ImportConfig{}
	}
}

// ApplyEnv applies environment overrides on top of file values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
}

// Location resolves Timezone; it falls back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "peoplecal")
	}
	return "./var/peoplecal"
}

// DefaultPath is where the config lives when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
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
//   - normalize defaults
//
// Environment overrides are applied in both cases.
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
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	tmp, err := os.CreateTemp(dir, ".peoplecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
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
