// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlConfig governs session behavior.
type CrawlConfig struct {
	MaxPages          int    `mapstructure:"max_pages"`
	Workers           int    `mapstructure:"workers"`
	MaxOracleInflight int    `mapstructure:"max_oracle_inflight"`
	ThresholdPreset   string `mapstructure:"threshold_preset"`
}

// OracleConfig points at the inference backend.
type OracleConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FetchConfig configures the static HTTP fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinTextChars  int  `mapstructure:"min_text_chars"`
}

// StorageConfig selects where raw page snapshots land.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres result store.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	SessionsTable string `mapstructure:"sessions_table"`
	PagesTable    string `mapstructure:"pages_table"`
	MaxConns      int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for page-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// OutputConfig selects local report destinations.
type OutputConfig struct {
	JSONPath     string `mapstructure:"json_path"`
	MarkdownPath string `mapstructure:"markdown_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIFTCRAWL")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.workers", 3)
	v.SetDefault("crawl.max_oracle_inflight", 2)
	v.SetDefault("crawl.threshold_preset", "balanced")
	v.SetDefault("oracle.base_url", "http://localhost:11434")
	v.SetDefault("oracle.model", "deepseek-r1:14b")
	v.SetDefault("oracle.timeout_seconds", 120)
	v.SetDefault("fetch.user_agent", "siftcrawl/0.1")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.min_text_chars", 200)
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.prefix", "crawls")
	v.SetDefault("db.sessions_table", "crawl_sessions")
	v.SetDefault("db.pages_table", "crawl_pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("output.json_path", "crawl_results.json")
	v.SetDefault("output.markdown_path", "crawl_results.md")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model is required")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case "", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of: local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir is required for the local backend")
	}
	return nil
}

// Thresholds resolves the configured preset name.
func (c Config) Thresholds() (crawler.Thresholds, error) {
	switch c.Crawl.ThresholdPreset {
	case "", "balanced":
		return crawler.BalancedThresholds(), nil
	case "strict":
		return crawler.StrictThresholds(), nil
	default:
		return crawler.Thresholds{}, fmt.Errorf("crawl.threshold_preset must be balanced or strict")
	}
}

// OracleTimeout converts the configured seconds into a duration.
func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// FetchTimeout converts the configured seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout converts the configured seconds into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
