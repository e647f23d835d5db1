package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for Makola.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Redis        RedisConfig        `koanf:"redis"`
	Quota        QuotaConfig        `koanf:"quota"`
	Metering     MeteringConfig     `koanf:"metering"`
	Notification NotificationConfig `koanf:"notification"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // "debug" or "release"
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RedisConfig holds settings for the session-flag store. When disabled,
// per-session reconciliation guards fall back to an in-process store.
type RedisConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Addr          string `koanf:"addr"`
	Password      string `koanf:"password"`
	DB            int    `koanf:"db"`
	SessionTTLMin int    `koanf:"session_ttl_min"`
}

// QuotaConfig holds settings for tier limit loading.
type QuotaConfig struct {
	TiersFile string `koanf:"tiers_file"` // optional YAML file overriding built-in limits
}

// MeteringConfig holds settings for the asynchronous event recorder.
type MeteringConfig struct {
	QueueBufferSize int `koanf:"queue_buffer_size"` // buffered chan capacity
	RetryCount      int `koanf:"retry_count"`       // transient store retries per write
	TopProducts     int `koanf:"top_products"`      // size of the lifetime ranking snapshot
}

// NotificationConfig holds settings for push fan-out.
type NotificationConfig struct {
	GatewayURL        string `koanf:"gateway_url"`
	BatchSize         int    `koanf:"batch_size"`
	RecentViewerDays  int    `koanf:"recent_viewer_days"`
	HistoryPageSize   int    `koanf:"history_page_size"`
	RequestTimeoutSec int    `koanf:"request_timeout_sec"`
}

// Load loads the configuration from the given file path and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"server.port":                      8080,
		"server.host":                      "0.0.0.0",
		"server.max_body_size_mb":          1,
		"server.mode":                      "release",
		"database.dsn":                     "postgres://localhost:5432/makola?sslmode=disable",
		"database.max_open_conns":          25,
		"database.max_idle_conns":          25,
		"database.auto_migrate":            true,
		"redis.enabled":                    false,
		"redis.addr":                       "localhost:6379",
		"redis.password":                   "",
		"redis.db":                         0,
		"redis.session_ttl_min":            30,
		"quota.tiers_file":                 "",
		"metering.queue_buffer_size":       1024,
		"metering.retry_count":             1,
		"metering.top_products":            5,
		"notification.gateway_url":         "http://localhost:9090/push",
		"notification.batch_size":          500,
		"notification.recent_viewer_days":  7,
		"notification.history_page_size":   50,
		"notification.request_timeout_sec": 10,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// 2. Load from file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Load from Environment Variables
	// MAKOLA_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("MAKOLA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MAKOLA_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
