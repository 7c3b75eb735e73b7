package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Fallback    FallbackConfig  `toml:"fallback"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
	Sources     SourcesConfig   `toml:"sources"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// ScraperConfig contains the knobs for the ingestion pipeline. Durations are
// expressed in seconds/milliseconds so the file stays editable by hand.
type ScraperConfig struct {
	MaxPages              int      `toml:"max_pages" validate:"gte=1"`
	BatchSize             int      `toml:"batch_size" validate:"gte=1,lte=5000"`
	MaxConcurrentRequests int      `toml:"max_concurrent_requests" validate:"gte=1"`
	QueueSize             int      `toml:"queue_size" validate:"gte=1"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds" validate:"gte=1"`
	RequestDelayMillis    int      `toml:"request_delay_ms" validate:"gte=0"` // Minimum delay between requests per worker slot
	RetryCount            int      `toml:"retry_count" validate:"gte=0"`
	RetryDelaySeconds     float64  `toml:"retry_delay_seconds" validate:"gt=0"`
	RetryMaxDelaySeconds  float64  `toml:"retry_max_delay_seconds" validate:"gt=0"`
	RetryBackoffFactor    float64  `toml:"retry_backoff_factor" validate:"gte=1"`
	DBRetries             int      `toml:"db_retries" validate:"gte=0"`
	FailureThreshold      int      `toml:"failure_threshold" validate:"gte=1"`
	RejectionRateLimit    float64  `toml:"rejection_rate_limit" validate:"gte=0,lte=1"` // Per-page rejection rate treated as a systemic failure
	SaveRawData           bool     `toml:"save_raw_data"`
	UserAgents            []string `toml:"user_agents" validate:"min=1,dive,required"`
}

// FallbackConfig controls where batches land when the store is unreachable
type FallbackConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

// SchedulerConfig contains configuration for periodic scrape runs
type SchedulerConfig struct {
	Enabled       bool `toml:"enabled"`
	IntervalHours int  `toml:"interval_hours" validate:"gte=1"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SourcesConfig points at the YAML file holding source descriptors
type SourcesConfig struct {
	File string `toml:"file" validate:"required"`
}

// RequestTimeout returns the per-request timeout as a duration
func (c *ScraperConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RequestDelay returns the per-slot minimum inter-request delay
func (c *ScraperConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMillis) * time.Millisecond
}

// RetryDelay returns the initial retry backoff
func (c *ScraperConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// RetryMaxDelay returns the backoff ceiling
func (c *ScraperConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds * float64(time.Second))
}

// NewDefaultConfig returns a config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/jobharvest",
				ResetOnStartup: false,
			},
		},
		Scraper: ScraperConfig{
			MaxPages:              100,
			BatchSize:             500,
			MaxConcurrentRequests: 5,
			QueueSize:             32,
			RequestTimeoutSeconds: 30,
			RequestDelayMillis:    1000,
			RetryCount:            3,
			RetryDelaySeconds:     1.0,
			RetryMaxDelaySeconds:  30.0,
			RetryBackoffFactor:    2.0,
			DBRetries:             2,
			FailureThreshold:      10,
			RejectionRateLimit:    0.5,
			SaveRawData:           true,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			},
		},
		Fallback: FallbackConfig{
			Dir: "./data/fallback",
		},
		Scheduler: SchedulerConfig{
			Enabled:       false,
			IntervalHours: 6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Sources: SourcesConfig{
			File: "sources.yaml",
		},
	}
}

// LoadFromFile loads configuration from a single TOML file over defaults
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration in layers: defaults, then each TOML file
// in order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies JOBHARVEST_* environment variables over the
// loaded configuration. Environment wins over file values.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("JOBHARVEST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("JOBHARVEST_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("JOBHARVEST_DB_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("JOBHARVEST_FALLBACK_DIR"); v != "" {
		config.Fallback.Dir = v
	}
	if v := os.Getenv("JOBHARVEST_SOURCES_FILE"); v != "" {
		config.Sources.File = v
	}
	if v := os.Getenv("JOBHARVEST_LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("JOBHARVEST_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			config.Scraper.MaxPages = n
		}
	}
	if v := os.Getenv("JOBHARVEST_MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			config.Scraper.MaxConcurrentRequests = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for structural errors. Fail-fast: an
// invalid configuration never reaches the pipeline.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scraper.RetryMaxDelaySeconds < c.Scraper.RetryDelaySeconds {
		return fmt.Errorf("invalid configuration: retry_max_delay_seconds (%v) must be >= retry_delay_seconds (%v)",
			c.Scraper.RetryMaxDelaySeconds, c.Scraper.RetryDelaySeconds)
	}
	return nil
}

// IsProduction returns true when running with environment = "production"
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}
