// Package config loads service configuration from TOKENART_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render/chrome"
	"github.com/jonwraymond/tokenart/secret"
)

// Prefix is prepended to every variable name.
const Prefix = "TOKENART_"

// Metadata store backends.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// ValidStores lists the accepted values of Config.Store.
var ValidStores = []string{StoreRedis, StoreSQLite, StoreMemory}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the full service configuration.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	ArtifactDir string `env:"ARTIFACT_DIR" envDefault:"generated"`

	Store      string `env:"STORE" envDefault:"redis"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"tokenart.db"`

	// CacheMaxEntries bounds the in-process metadata cache. Zero keeps every entry.
	CacheMaxEntries int `env:"CACHE_MAX_ENTRIES" envDefault:"0"`
	ThumbnailSize   int `env:"THUMBNAIL_SIZE" envDefault:"350"`
	// QueueDegradedAt is the render backlog at which readiness reports degraded.
	QueueDegradedAt int `env:"QUEUE_DEGRADED_AT" envDefault:"16"`

	Chrome    Chrome    `envPrefix:"CHROME_"`
	Telemetry Telemetry `envPrefix:"OTEL_"`
}

// Chrome configures the headless browser.
type Chrome struct {
	ExecPath  string        `env:"PATH"`
	RemoteURL string        `env:"REMOTE_URL"`
	Headless  bool          `env:"HEADLESS" envDefault:"true"`
	NoSandbox bool          `env:"NO_SANDBOX"`
	Width     int           `env:"WIDTH" envDefault:"1024"`
	Height    int           `env:"HEIGHT" envDefault:"1024"`
	Timeout   time.Duration `env:"TIMEOUT"`
}

// Telemetry configures logging, tracing, and metrics.
type Telemetry struct {
	ServiceName     string  `env:"SERVICE_NAME" envDefault:"tokenart"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
	TracingExporter string  `env:"TRACES_EXPORTER" envDefault:"none"`
	MetricsExporter string  `env:"METRICS_EXPORTER" envDefault:"none"`
	Endpoint        string  `env:"ENDPOINT"`
	SamplePct       float64 `env:"SAMPLE_PCT" envDefault:"1"`
}

// Load parses the environment, expands ${VAR} references in connection
// strings and paths, and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := secret.ExpandAll(&cfg.RedisURL, &cfg.SQLitePath, &cfg.ArtifactDir, &cfg.Chrome.ExecPath, &cfg.Chrome.RemoteURL); err != nil {
		return Config{}, fmt.Errorf("expand env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if !slices.Contains(ValidStores, c.Store) {
		return fmt.Errorf("%w: store %q (want one of %v)", ErrInvalidConfig, c.Store, ValidStores)
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("%w: cache max entries must not be negative", ErrInvalidConfig)
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("%w: thumbnail size must be positive", ErrInvalidConfig)
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("%w: artifact dir is required", ErrInvalidConfig)
	}
	obs := c.Observe("")
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// CachePolicy returns the in-process cache policy.
func (c Config) CachePolicy() cache.Policy {
	if c.CacheMaxEntries > 0 {
		return cache.BoundedPolicy(c.CacheMaxEntries)
	}
	return cache.DefaultPolicy()
}

// Observe returns the telemetry configuration.
func (c Config) Observe(version string) observe.Config {
	t := c.Telemetry
	return observe.Config{
		ServiceName: t.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   t.TracingExporter != "none" && t.TracingExporter != "",
			Exporter:  t.TracingExporter,
			Endpoint:  t.Endpoint,
			SamplePct: t.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  t.MetricsExporter != "none" && t.MetricsExporter != "",
			Exporter: t.MetricsExporter,
			Endpoint: t.Endpoint,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   t.LogLevel,
		},
	}
}

// ChromeConfig returns the browser configuration.
func (c Config) ChromeConfig() chrome.Config {
	headless := c.Chrome.Headless
	return chrome.Config{
		ExecPath:  c.Chrome.ExecPath,
		RemoteURL: c.Chrome.RemoteURL,
		Headless:  &headless,
		NoSandbox: c.Chrome.NoSandbox,
		Width:     c.Chrome.Width,
		Height:    c.Chrome.Height,
		Timeout:   c.Chrome.Timeout,
	}
}
