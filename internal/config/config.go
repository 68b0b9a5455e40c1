package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CalDAVConfig holds calendar server settings. Username and Password are
// normally left empty in the file and supplied through the environment
// (see ApplyEnv); for iCloud the password must be an app-specific one.
type CalDAVConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"-" json:"-"`
	Calendar string `yaml:"calendar" json:"calendar"`
}

// TelegramConfig holds bot credentials. Token comes from the environment.
type TelegramConfig struct {
	Token  string `yaml:"-" json:"-"`
	ChatID int64  `yaml:"chat_id,omitempty" json:"chat_id,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// PortalURL is the university timetable portal.
	PortalURL string `yaml:"portal_url" json:"portal_url"`

	// Group is the student group whose schedule is synced (e.g. "IT11Z").
	Group string `yaml:"group" json:"group"`

	// Semester selects the portal semester (1 or 2).
	Semester int `yaml:"semester" json:"semester"`

	// SemesterStart is the date of Monday of university week 1, in
	// YYYY-MM-DD form, interpreted in Timezone.
	SemesterStart string `yaml:"semester_start" json:"semester_start"`

	// Timezone is the IANA zone every slot time is computed in. It is
	// deliberately explicit: results must not depend on the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// MonitorWeeks is how many weeks beyond the current one the monitor
	// watches.
	MonitorWeeks int `yaml:"monitor_weeks" json:"monitor_weeks"`

	// MonitorCron is the cron schedule for periodic change checks.
	MonitorCron string `yaml:"monitor_cron" json:"monitor_cron"`

	// AutoSync reconciles the calendar automatically when the monitor
	// detects a change.
	AutoSync bool `yaml:"auto_sync" json:"auto_sync"`

	// SnapshotDB is the path of the SQLite snapshot database.
	SnapshotDB string `yaml:"snapshot_db" json:"snapshot_db"`

	CalDAV   CalDAVConfig   `yaml:"caldav" json:"caldav"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		PortalURL:     "https://orar.usarb.md",
		Group:         "IT11Z",
		Semester:      1,
		SemesterStart: "2025-09-01",
		Timezone:      "Europe/Chisinau",
		MonitorWeeks:  2,
		MonitorCron:   "@every 1h",
		AutoSync:      false,
		SnapshotDB:    "orarsync.db",
		CalDAV: CalDAVConfig{
			URL:      "https://caldav.icloud.com/",
			Calendar: "USARB Schedule",
		},
	}
}

// Normalize fills missing/zero values with defaults so partially written
// configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.PortalURL == "" {
		c.PortalURL = def.PortalURL
	}
	if c.Semester <= 0 {
		c.Semester = def.Semester
	}
	if c.SemesterStart == "" {
		c.SemesterStart = def.SemesterStart
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.MonitorWeeks <= 0 {
		c.MonitorWeeks = def.MonitorWeeks
	}
	if c.MonitorCron == "" {
		c.MonitorCron = def.MonitorCron
	}
	if c.SnapshotDB == "" {
		c.SnapshotDB = def.SnapshotDB
	}
	if c.CalDAV.URL == "" {
		c.CalDAV.URL = def.CalDAV.URL
	}
	if c.CalDAV.Calendar == "" {
		c.CalDAV.Calendar = def.CalDAV.Calendar
	}
}

// ApplyEnv overlays credentials and overrides from the environment,
// loading a .env file first when one exists. Environment values win over
// file values so that secrets never need to live in the config file.
func (c *Config) ApplyEnv() {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	if v := os.Getenv("CALDAV_URL"); v != "" {
		c.CalDAV.URL = v
	}
	if v := os.Getenv("CALDAV_USERNAME"); v != "" {
		c.CalDAV.Username = v
	}
	if v := os.Getenv("CALDAV_PASSWORD"); v != "" {
		c.CalDAV.Password = v
	}
	if v := os.Getenv("CALENDAR_NAME"); v != "" {
		c.CalDAV.Calendar = v
	}
	if v := os.Getenv("GROUP_NAME"); v != "" {
		c.Group = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Epoch returns Monday of week 1 at midnight in the configured zone.
func (c *Config) Epoch() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	epoch, err := time.ParseInLocation("2006-01-02", c.SemesterStart, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: bad semester_start %q: %w", c.SemesterStart, err)
	}
	if epoch.Weekday() != time.Monday {
		return time.Time{}, fmt.Errorf("config: semester_start %q is not a Monday", c.SemesterStart)
	}
	return epoch, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600)
// and returned, so the first run leaves a template to fill in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".orarsync-config-*.tmp")
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
