// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Session store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig configures the search backend client.
type SearchConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	RatePerMinute   int    `mapstructure:"rate_per_minute"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	CacheMaxItems   int    `mapstructure:"cache_max_items"`
	MaxResults      int    `mapstructure:"max_results"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// FetchConfig configures source retrieval and the quality gate.
type FetchConfig struct {
	RatePerMinute   int    `mapstructure:"rate_per_minute"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	CacheMaxItems   int    `mapstructure:"cache_max_items"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
	RespectRobots   bool   `mapstructure:"respect_robots"`
	MinTextLength   int    `mapstructure:"min_text_length"`
	MaxTextLength   int    `mapstructure:"max_text_length"`
}

// IngestConfig bounds per-session ingest work.
type IngestConfig struct {
	MaxSourcesPerSession           int `mapstructure:"max_sources_per_session"`
	MaxFailuresPerSession          int `mapstructure:"max_failures_per_session"`
	MaxSourceCharsForSummarization int `mapstructure:"max_source_chars_for_summarization"`
}

// SummarizerConfig sizes generated summaries.
type SummarizerConfig struct {
	MaxChars  int `mapstructure:"max_chars"`
	MaxPoints int `mapstructure:"max_points"`
}

// QueueConfig sizes the in-process job queue and worker pool.
type QueueConfig struct {
	Depth   int `mapstructure:"depth"`
	Workers int `mapstructure:"workers"`
}

// StorageConfig selects where rendered media is written.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	MediaRoot    string `mapstructure:"media_root"`
	MediaBaseURL string `mapstructure:"media_base_url"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	GCSBaseURL   string `mapstructure:"gcs_base_url"`
}

// DBConfig selects and configures the session store.
type DBConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MaxConns   int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INFOGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("search.endpoint", "https://duckduckgo.com/html/")
	v.SetDefault("search.rate_per_minute", 20)
	v.SetDefault("search.cache_ttl_seconds", 3600)
	v.SetDefault("search.cache_max_items", 512)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout_seconds", 20)
	v.SetDefault("fetch.rate_per_minute", 20)
	v.SetDefault("fetch.cache_ttl_seconds", 3600)
	v.SetDefault("fetch.cache_max_items", 512)
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.min_text_length", 200)
	v.SetDefault("fetch.max_text_length", 20000)
	v.SetDefault("ingest.max_sources_per_session", 5)
	v.SetDefault("ingest.max_failures_per_session", 3)
	v.SetDefault("ingest.max_source_chars_for_summarization", 6000)
	v.SetDefault("summarizer.max_chars", 800)
	v.SetDefault("summarizer.max_points", 5)
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.workers", 2)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.media_root", "./media")
	v.SetDefault("storage.media_base_url", "http://localhost:8080/media")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_base_url", "https://storage.googleapis.com")
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.sqlite_path", "./infograph.db")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Search.RatePerMinute <= 0 {
		return fmt.Errorf("search.rate_per_minute must be > 0")
	}
	if c.Fetch.RatePerMinute <= 0 {
		return fmt.Errorf("fetch.rate_per_minute must be > 0")
	}
	if c.Search.CacheTTLSeconds <= 0 || c.Fetch.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be > 0")
	}
	if c.Search.CacheMaxItems <= 0 || c.Fetch.CacheMaxItems <= 0 {
		return fmt.Errorf("cache_max_items must be > 0")
	}
	if c.Search.TimeoutSeconds <= 0 || c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if c.Fetch.MinTextLength <= 0 {
		return fmt.Errorf("fetch.min_text_length must be > 0")
	}
	if c.Fetch.MaxTextLength < c.Fetch.MinTextLength {
		return fmt.Errorf("fetch.max_text_length must be >= fetch.min_text_length")
	}
	if c.Ingest.MaxSourcesPerSession <= 0 {
		return fmt.Errorf("ingest.max_sources_per_session must be > 0")
	}
	if c.Ingest.MaxFailuresPerSession <= 0 {
		return fmt.Errorf("ingest.max_failures_per_session must be > 0")
	}
	if c.Ingest.MaxSourceCharsForSummarization <= 0 {
		return fmt.Errorf("ingest.max_source_chars_for_summarization must be > 0")
	}
	if c.Summarizer.MaxChars <= 0 {
		return fmt.Errorf("summarizer.max_chars must be > 0")
	}
	if c.Summarizer.MaxPoints <= 0 {
		return fmt.Errorf("summarizer.max_points must be > 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be > 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.MediaRoot == "" {
			return fmt.Errorf("storage.media_root must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("db.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q is not one of memory, sqlite, postgres", c.DB.Driver)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// SearchTimeout converts search.timeout_seconds to a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// FetchTimeout converts fetch.timeout_seconds to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CacheTTL returns the search and fetch cache lifetimes.
func (c Config) CacheTTL() (search, fetch time.Duration) {
	return time.Duration(c.Search.CacheTTLSeconds) * time.Second,
		time.Duration(c.Fetch.CacheTTLSeconds) * time.Second
}
