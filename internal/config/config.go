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

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen            = "0.0.0.0:8080"
	defaultSecretPath        = "super-secret-url-you-will-never-guess"
	defaultTimezone          = "Europe/Amsterdam"
	defaultCalendarName      = "Notion Derived Calendar"
	defaultProductID         = "-//notioncal//Notion Derived Calendar//EN"
	defaultUIDDomain         = "notioncal.local"
	defaultCachePath         = "/tmp/notioncal.ics"
	defaultRefreshCron       = "@every 30m"
	defaultRefreshTimeout    = 5 * time.Minute
	defaultRequestTimeout    = 30 * time.Second
	defaultRequestsPerSecond = 3
	defaultWorkers           = 1
	defaultNotionVersion     = "2022-06-28"
	defaultNotionBaseURL     = "https://api.notion.com/v1"
)

// NotionConfig holds the credentials and endpoint of the source database.
type NotionConfig struct {
	// APIKey is the integration secret sent as a bearer token.
	APIKey string `yaml:"api_key" json:"-"`
	// DatabaseID identifies the database whose pages become events.
	DatabaseID string `yaml:"database_id" json:"database_id"`
	// Version is sent as the Notion-Version header.
	Version string `yaml:"version" json:"version"`
	// BaseURL is the API root, e.g. "https://api.notion.com/v1".
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Config is the top-level application configuration. It is built once at
// startup and passed by pointer to the components that need it; nothing
// mutates it afterwards.
type Config struct {
	// Listen is the HTTP listen address of the feed server.
	Listen string `yaml:"listen" json:"listen"`

	// SecretPath is the single path segment the feed is served on.
	SecretPath string `yaml:"secret_path" json:"-"`

	// Timezone is the IANA display zone declared in the feed header
	// (e.g. "Europe/Amsterdam"). Timed events are rendered as wall clock
	// in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	CalendarName string `yaml:"calendar_name" json:"calendar_name"`
	ProductID    string `yaml:"product_id" json:"product_id"`

	// UIDDomain is appended to every generated event UID.
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`

	// CachePath is the rendered feed location.
	CachePath string `yaml:"cache_path" json:"cache_path"`

	// RefreshCron is a cron spec or descriptor (e.g. "@every 30m").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// RequestsPerSecond throttles calls to the Notion API.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// Workers bounds concurrent title fetches during a refresh.
	Workers int `yaml:"workers" json:"workers"`

	LogLevel    string `yaml:"log_level" json:"log_level"`
	Environment string `yaml:"environment" json:"environment"`

	Notion NotionConfig `yaml:"notion" json:"notion"`
}

// envOverrides lists every setting that can come from the environment.
// Unset variables leave the file value in place.
type envOverrides struct {
	APIKey            string        `env:"NOTION_API_KEY"`
	DatabaseID        string        `env:"NOTION_DATABASE_ID"`
	NotionVersion     string        `env:"NOTION_VERSION"`
	NotionBaseURL     string        `env:"NOTION_BASE_URL"`
	SecretURL         string        `env:"SECRET_URL"`
	Listen            string        `env:"LISTEN_ADDR"`
	Timezone          string        `env:"CALENDAR_TIMEZONE"`
	CalendarName      string        `env:"CALENDAR_NAME"`
	UIDDomain         string        `env:"UID_DOMAIN"`
	CachePath         string        `env:"CACHE_PATH"`
	RefreshCron       string        `env:"REFRESH_CRON"`
	RefreshTimeout    time.Duration `env:"REFRESH_TIMEOUT"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND"`
	Workers           int           `env:"SYNC_WORKERS"`
	LogLevel          string        `env:"LOG_LEVEL"`
	Environment       string        `env:"ENVIRONMENT"`
}

// DefaultConfig returns an in-memory default configuration. Credentials
// are left empty.
func DefaultConfig() *Config {
	return &Config{
		Listen:            defaultListen,
		SecretPath:        defaultSecretPath,
		Timezone:          defaultTimezone,
		CalendarName:      defaultCalendarName,
		ProductID:         defaultProductID,
		UIDDomain:         defaultUIDDomain,
		CachePath:         defaultCachePath,
		RefreshCron:       defaultRefreshCron,
		RefreshTimeout:    defaultRefreshTimeout,
		RequestTimeout:    defaultRequestTimeout,
		RequestsPerSecond: defaultRequestsPerSecond,
		Workers:           defaultWorkers,
		LogLevel:          "info",
		Environment:       "development",
		Notion: NotionConfig{
			Version: defaultNotionVersion,
			BaseURL: defaultNotionBaseURL,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	c.SecretPath = strings.Trim(c.SecretPath, "/")
	if c.SecretPath == "" {
		c.SecretPath = d.SecretPath
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.CalendarName == "" {
		c.CalendarName = d.CalendarName
	}
	if c.ProductID == "" {
		c.ProductID = d.ProductID
	}
	if c.UIDDomain == "" {
		c.UIDDomain = d.UIDDomain
	}
	if c.CachePath == "" {
		c.CachePath = d.CachePath
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = d.RefreshTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	c.Environment = strings.ToLower(c.Environment)
	if c.Notion.Version == "" {
		c.Notion.Version = d.Notion.Version
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = d.Notion.BaseURL
	}
	c.Notion.BaseURL = strings.TrimRight(c.Notion.BaseURL, "/")
}

// Validate reports settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Notion.APIKey == "" {
		errs = append(errs, errors.New("NOTION_API_KEY is not set"))
	}
	if c.Notion.DatabaseID == "" {
		errs = append(errs, errors.New("NOTION_DATABASE_ID is not set"))
	}
	if strings.ContainsAny(c.SecretPath, "/{} \t") {
		errs = append(errs, fmt.Errorf("secret path %q must be a single path segment", c.SecretPath))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("invalid refresh schedule %q: %w", c.RefreshCron, err))
	}
	return errors.Join(errs...)
}

// Location returns the display zone. Validate must have succeeded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load builds the configuration.
//
// Behavior:
//   - If path is non-empty and the file exists, read YAML from it.
//   - A missing file is not an error; defaults are used.
//   - A .env file in the working directory is loaded if present
//     (existing environment variables win).
//   - Environment variables override file values.
//   - Defaults fill whatever is still empty.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// First run without a file; environment only.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	setString(&cfg.Notion.APIKey, o.APIKey)
	setString(&cfg.Notion.DatabaseID, o.DatabaseID)
	setString(&cfg.Notion.Version, o.NotionVersion)
	setString(&cfg.Notion.BaseURL, o.NotionBaseURL)
	setString(&cfg.SecretPath, o.SecretURL)
	setString(&cfg.Listen, o.Listen)
	setString(&cfg.Timezone, o.Timezone)
	setString(&cfg.CalendarName, o.CalendarName)
	setString(&cfg.UIDDomain, o.UIDDomain)
	setString(&cfg.CachePath, o.CachePath)
	setString(&cfg.RefreshCron, o.RefreshCron)
	setString(&cfg.LogLevel, o.LogLevel)
	setString(&cfg.Environment, o.Environment)

	if o.RefreshTimeout > 0 {
		cfg.RefreshTimeout = o.RefreshTimeout
	}
	if o.RequestTimeout > 0 {
		cfg.RequestTimeout = o.RequestTimeout
	}
	if o.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = o.RequestsPerSecond
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Save writes the configuration as YAML, atomically via a temp file +
// rename, with 0600 permissions since the file may hold the API key.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notioncal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	// Flush before rename so a crash cannot leave an empty config behind.
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
