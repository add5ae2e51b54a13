// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Archiver  ArchiverConfig  `mapstructure:"archiver"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Search    SearchConfig    `mapstructure:"search"`
	Sheet     SheetConfig     `mapstructure:"sheet"`
	Backup    BackupConfig    `mapstructure:"backup"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ArchiverConfig governs job execution behavior.
type ArchiverConfig struct {
	DefaultMaxPosts int `mapstructure:"default_max_posts"`
	PauseMinMs      int `mapstructure:"pause_min_ms"`
	PauseMaxMs      int `mapstructure:"pause_max_ms"`
}

// BrowserConfig configures the headless rendering session.
type BrowserConfig struct {
	UserAgent     string         `mapstructure:"user_agent"`
	NavTimeoutSec int            `mapstructure:"nav_timeout_seconds"`
	MaxParallel   int            `mapstructure:"max_parallel"`
	Cookies       []CookieConfig `mapstructure:"cookies"`
}

// CookieConfig is one authentication cookie for the browsing session.
type CookieConfig struct {
	Name     string `mapstructure:"name"`
	Value    string `mapstructure:"value"`
	Domain   string `mapstructure:"domain"`
	Path     string `mapstructure:"path"`
	Secure   bool   `mapstructure:"secure"`
	HTTPOnly bool   `mapstructure:"http_only"`
}

// SearchConfig addresses the keyword search endpoint.
type SearchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Cookie         string `mapstructure:"cookie"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SheetConfig addresses the spreadsheet webhook sink.
type SheetConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	AuthToken      string `mapstructure:"auth_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BackupConfig sets the flat-file backup target.
type BackupConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion-event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SchedulerConfig controls the queue polling loop.
type SchedulerConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAFEARCHIVER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("archiver.default_max_posts", 100)
	v.SetDefault("archiver.pause_min_ms", 900)
	v.SetDefault("archiver.pause_max_ms", 1500)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.max_parallel", 1)
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("sheet.timeout_seconds", 30)
	v.SetDefault("backup.base_dir", "./backups")
	v.SetDefault("scheduler.poll_interval_seconds", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Archiver.DefaultMaxPosts <= 0 {
		return fmt.Errorf("archiver.default_max_posts must be > 0")
	}
	if c.Archiver.PauseMinMs <= 0 || c.Archiver.PauseMaxMs < c.Archiver.PauseMinMs {
		return fmt.Errorf("archiver pause window must satisfy 0 < min <= max")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Scheduler.PollIntervalSec <= 0 {
		return fmt.Errorf("scheduler.poll_interval_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// NavTimeout returns the navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// PollInterval returns the scheduler tick period as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSec) * time.Second
}
