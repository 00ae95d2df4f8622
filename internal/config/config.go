// Package config loads northsync configuration from file and environment.
//
// Settings come from northsync.yaml (searched in $NORTHSYNC_CONFIG, then
// ~/.config/northsync) with NORTHSYNC_-prefixed environment variables
// overriding individual keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Spool     SpoolConfig
	Provider  ProviderConfig
	Sync      SyncConfig
	Retry     RetryConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// SpoolConfig holds link-file ingestion settings.
type SpoolConfig struct {
	Dir string
}

// ProviderConfig holds bank-provider API settings.
type ProviderConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	ClientID          string `mapstructure:"client_id"`
	Secret            string
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Timeout           time.Duration
	CatalogPath       string `mapstructure:"catalog_path"`
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	Interval       time.Duration
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	Concurrency    int
	FetchOverlap   time.Duration `mapstructure:"fetch_overlap"`
	BalanceEpsilon int64         `mapstructure:"balance_epsilon"`
}

// RetryConfig holds backoff settings.
type RetryConfig struct {
	Base           time.Duration
	RateLimitBase  time.Duration `mapstructure:"rate_limit_base"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

// DashboardConfig holds WebSocket dashboard settings.
type DashboardConfig struct {
	Port int
}

// LogConfig holds daemon log rotation settings.
type LogConfig struct {
	File       string
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Load reads configuration from file and env. Env var overrides use prefix NORTHSYNC_.
func Load() (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "northsync")

	// default values
	v.SetDefault("database.path", filepath.Join(dataDir, "northsync.db"))
	v.SetDefault("spool.dir", filepath.Join(dataDir, "spool"))
	v.SetDefault("provider.base_url", "https://sandbox.plaid.com")
	v.SetDefault("provider.client_id", "")
	v.SetDefault("provider.secret", "")
	v.SetDefault("provider.requests_per_second", 10.0)
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.catalog_path", "")
	v.SetDefault("sync.interval", "60m")
	v.SetDefault("sync.stale_threshold", "15m")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.fetch_overlap", "168h")
	v.SetDefault("sync.balance_epsilon", 0)
	v.SetDefault("retry.base", "1s")
	v.SetDefault("retry.rate_limit_base", "30s")
	v.SetDefault("retry.max_delay", "2m")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("dashboard.port", 8321)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	v.SetConfigType("yaml")

	cfgPath := os.Getenv("NORTHSYNC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "northsync"))
		v.SetConfigName("northsync")
	}

	v.SetEnvPrefix("NORTHSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
