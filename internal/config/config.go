// Package config loads and validates ingestion service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage providers.
const (
	ProviderGCS    = "gcs"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
)

// EnvPrefix namespaces environment overrides, e.g. INGEST_GRANTS_API_KEY.
const EnvPrefix = "INGEST"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Grants    GrantsConfig    `mapstructure:"grants"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig gates the ingestion endpoint behind a function key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// GrantsConfig configures the upstream grants API client.
type GrantsConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	PageSize       int     `mapstructure:"page_size"`
	PageDelayMs    int     `mapstructure:"page_delay_ms"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	MaxRPS         float64 `mapstructure:"max_rps"`
	Burst          int     `mapstructure:"burst"`
}

// IngestConfig governs the day fan-out and request defaults.
type IngestConfig struct {
	Workers               int    `mapstructure:"workers"`
	DayDelayMs            int    `mapstructure:"day_delay_ms"`
	DefaultStartDate      string `mapstructure:"default_start_date"`
	DefaultEndDate        string `mapstructure:"default_end_date"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// StorageConfig selects the blob backend and artifact layout.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	LocalDir      string `mapstructure:"local_dir"`
	StagingPrefix string `mapstructure:"staging_prefix"`
	BronzePrefix  string `mapstructure:"bronze_prefix"`
	LogPath       string `mapstructure:"log_path"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls the optional Postgres audit mirror.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	// Migrate applies the embedded schema on startup.
	Migrate                bool   `mapstructure:"migrate"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	ProjectID      string  `mapstructure:"project_id"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("grants.base_url", "https://www.highergov.com/api-external/grant/")
	// bound explicitly so AutomaticEnv picks up INGEST_GRANTS_API_KEY during Unmarshal
	v.SetDefault("grants.api_key", "")
	v.SetDefault("grants.page_size", 100)
	v.SetDefault("grants.page_delay_ms", 300)
	v.SetDefault("grants.timeout_seconds", 30)
	v.SetDefault("grants.user_agent", "award-ingestor/0.1")
	v.SetDefault("grants.max_rps", 0)
	v.SetDefault("grants.burst", 1)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.day_delay_ms", 500)
	v.SetDefault("ingest.default_start_date", "2024-01-01")
	v.SetDefault("ingest.default_end_date", "2024-12-31")
	v.SetDefault("ingest.request_timeout_seconds", 1800)
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("storage.staging_prefix", "Staging")
	v.SetDefault("storage.bronze_prefix", "Bronze")
	v.SetDefault("storage.log_path", "Staging/log.csv")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "ingest_runs")
	v.SetDefault("db.migrate", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "award-ingestor")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Grants.APIKey == "" {
		return fmt.Errorf("grants.api_key is required")
	}
	if c.Grants.PageSize <= 0 {
		return fmt.Errorf("grants.page_size must be > 0")
	}
	if c.Grants.TimeoutSeconds <= 0 {
		return fmt.Errorf("grants.timeout_seconds must be > 0")
	}
	if c.Grants.PageDelayMs < 0 || c.Ingest.DayDelayMs < 0 {
		return fmt.Errorf("grants.page_delay_ms and ingest.day_delay_ms must be >= 0")
	}
	if c.Grants.MaxRPS < 0 {
		return fmt.Errorf("grants.max_rps must be >= 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("ingest.request_timeout_seconds must be > 0")
	}
	for key, val := range map[string]string{
		"ingest.default_start_date": c.Ingest.DefaultStartDate,
		"ingest.default_end_date":   c.Ingest.DefaultEndDate,
	} {
		if _, err := time.Parse("2006-1-2", val); err != nil {
			return fmt.Errorf("%s must be YYYY-MM-DD: %q", key, val)
		}
	}
	switch c.Storage.Provider {
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case ProviderLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local provider")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage.provider must be one of gcs, local, memory; got %q", c.Storage.Provider)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.DB.Migrate && (c.DB.DSN == "" || c.DB.Table != "ingest_runs") {
		return fmt.Errorf("db.migrate requires db.dsn and the default db.table ingest_runs")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// PageDelay is the pause between full pages of one day.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Grants.PageDelayMs) * time.Millisecond
}

// DayDelay is the pause after each merged day.
func (c Config) DayDelay() time.Duration {
	return time.Duration(c.Ingest.DayDelayMs) * time.Millisecond
}

// GrantsTimeout bounds each upstream HTTP request.
func (c Config) GrantsTimeout() time.Duration {
	return time.Duration(c.Grants.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one ingestion request end to end.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Ingest.RequestTimeoutSeconds) * time.Second
}
