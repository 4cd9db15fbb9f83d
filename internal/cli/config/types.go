// Package config loads lookerexp settings from defaults, a YAML file,
// environment variables and command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
	"github.com/leapstack-labs/lookerexp/internal/manifest"
)

// Config holds all CLI configuration options.
type Config struct {
	BaseURL        string                 `koanf:"base_url"`
	APIURL         string                 `koanf:"api_url"`
	APIVersion     string                 `koanf:"api_version"`
	ClientID       string                 `koanf:"client_id"`
	ClientSecret   string                 `koanf:"client_secret"`
	OutputDir      string                 `koanf:"output_dir"`
	StatePath      string                 `koanf:"state_path"`
	Dashboards     []string               `koanf:"dashboards"`
	Folders        []string               `koanf:"folders"`
	IncludeDeleted bool                   `koanf:"include_deleted"`
	Policy         exposure.FailurePolicy `koanf:"policy"`
	Concurrency    ConcurrencyConfig      `koanf:"concurrency"`
	RateLimit      RateLimitConfig        `koanf:"rate_limit"`
	Retry          RetryConfig            `koanf:"retry"`
	Timeouts       TimeoutConfig          `koanf:"timeouts"`
	Verbose        bool                   `koanf:"verbose"`
	LogFormat      string                 `koanf:"log_format"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ConcurrencyConfig bounds parallel work.
type ConcurrencyConfig struct {
	Dashboards int `koanf:"dashboards"`
	Queries    int `koanf:"queries"`
}

// RateLimitConfig limits API request throughput.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// RetryConfig controls retries of transient API failures.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// TimeoutConfig holds request and batch deadlines.
type TimeoutConfig struct {
	Request time.Duration `koanf:"request"`
	Batch   time.Duration `koanf:"batch"`
}

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Default configuration values.
const (
	DefaultAPIVersion           = "3.1"
	DefaultAPIPort              = "19999"
	DefaultOutputDir            = manifest.DefaultDir
	DefaultStateFile            = ".lookerexp/state.db"
	DefaultDashboardConcurrency = 4
	DefaultQueryConcurrency     = exposure.DefaultConcurrency
	DefaultRateLimit            = 10.0
	DefaultBurst                = 5
	DefaultMaxAttempts          = 3
	DefaultBaseDelay            = 500 * time.Millisecond
	DefaultMaxDelay             = 10 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultBatchTimeout         = 10 * time.Minute
	DefaultLogFormat            = LogFormatText
)

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() *Config {
	return &Config{
		APIVersion: DefaultAPIVersion,
		OutputDir:  DefaultOutputDir,
		StatePath:  DefaultStateFile,
		Policy:     exposure.DefaultPolicy,
		Concurrency: ConcurrencyConfig{
			Dashboards: DefaultDashboardConcurrency,
			Queries:    DefaultQueryConcurrency,
		},
		RateLimit: RateLimitConfig{RPS: DefaultRateLimit, Burst: DefaultBurst},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
			MaxDelay:    DefaultMaxDelay,
		},
		Timeouts:  TimeoutConfig{Request: DefaultRequestTimeout, Batch: DefaultBatchTimeout},
		LogFormat: DefaultLogFormat,
	}
}

// DashboardIDs returns the configured dashboard ids.
func (c *Config) DashboardIDs() []exposure.ID {
	return exposure.ParseIDs(c.Dashboards)
}

// FolderIDs returns the configured folder ids.
func (c *Config) FolderIDs() []exposure.ID {
	return exposure.ParseIDs(c.Folders)
}
