// Package config loads and validates the inventory backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MED_ prefix (e.g., MED_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments.
//
// The ENCRYPTION_KEY variable has no MED_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// DSN assembles the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// SecurityConfig holds export-encryption configuration. The passphrase comes
// from the unprefixed ENCRYPTION_KEY environment variable; the salt is not
// secret and may live in the YAML file.
type SecurityConfig struct {
	EncryptionSalt string `mapstructure:"encryption_salt"`
	PBKDF2Iters    int    `mapstructure:"pbkdf2_iterations"`
}

// EncryptionPassphrase returns the export-encryption passphrase, empty when
// encrypted exports are not configured.
func (s *SecurityConfig) EncryptionPassphrase() string {
	return os.Getenv("ENCRYPTION_KEY")
}

// LoggingConfig holds structured-logging configuration
type LoggingConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// TelemetryConfig holds metrics side-channel configuration
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	MetricsPort    int  `mapstructure:"metrics_port"`
}

// AuditConfig holds audit subsystem configuration
type AuditConfig struct {
	// ExportMaxRows is the hard cap on rows a single export may fetch. Exports
	// cover the full filtered set, so this bound is what keeps a broad filter
	// from loading the whole table into memory.
	ExportMaxRows int `mapstructure:"export_max_rows"`
	// WriteTimeout bounds each asynchronous best-effort audit write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RateLimitConfig holds rate limiter configuration. Redis settings are only
// consulted when Backend is "redis"; the default in-memory backend needs none.
type RateLimitConfig struct {
	Backend       string `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	APIRequestsPerMinute int           `mapstructure:"api_requests_per_minute"`
	LoginMaxAttempts     int           `mapstructure:"login_max_attempts"`
	LoginWindow          time.Duration `mapstructure:"login_window"`
	EmailMaxAttempts     int           `mapstructure:"email_max_attempts"`
	EmailWindow          time.Duration `mapstructure:"email_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "medtrack")
	v.SetDefault("database.user", "medtrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("auth.token_expiry", 8*time.Hour)

	v.SetDefault("security.encryption_salt", "")
	v.SetDefault("security.pbkdf2_iterations", 100000)

	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.level", "info")

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.metrics_port", 9090)

	v.SetDefault("audit.export_max_rows", 50000)
	v.SetDefault("audit.write_timeout", 5*time.Second)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.api_requests_per_minute", 100)
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.login_window", 15*time.Minute)
	v.SetDefault("rate_limit.email_max_attempts", 10)
	v.SetDefault("rate_limit.email_window", 15*time.Minute)
}

// Load reads configuration from the given YAML path (optional) and the
// environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Audit.ExportMaxRows < 1 {
		return fmt.Errorf("audit.export_max_rows must be positive, got %d", c.Audit.ExportMaxRows)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate_limit.backend %q (must be 'memory' or 'redis')", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.RedisAddr == "" {
		return fmt.Errorf("rate_limit.redis_addr is required when backend is 'redis'")
	}
	return nil
}

// Watch re-reads the config file on change and invokes onChange with the fresh
// configuration. Only settings that are safe to apply live (currently the log
// level/format) should be acted on by the callback; connection settings require
// a restart. No-op when configPath is empty.
func Watch(configPath string, onChange func(*Config)) {
	if configPath == "" {
		return
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch disabled, cannot read config file", "path", configPath, "error", err)
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			slog.Warn("ignoring config change, unmarshal failed", "event", e.Name, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			slog.Warn("ignoring config change, validation failed", "event", e.Name, "error", err)
			return
		}
		slog.Info("configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
