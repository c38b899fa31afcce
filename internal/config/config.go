// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"transcendence/backend/internal/security"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the public HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// HealthAddr is the gRPC health probe address; empty disables the probe.
	HealthAddr string `mapstructure:"HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AutoMigrate runs the embedded migrations on server start.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// TOTPEncKey is the 32-byte key (hex, base64url or base64) that encrypts TOTP secrets at rest.
	TOTPEncKey string `mapstructure:"TOTP_ENC_KEY"`
	// TOTPIssuer is the issuer shown by authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// RecoveryCodeCount is the number of recovery codes issued when 2FA is confirmed.
	RecoveryCodeCount int `mapstructure:"RECOVERY_CODE_COUNT"`

	// AccessTTLRaw is the access token lifetime (e.g. "15m").
	AccessTTLRaw string `mapstructure:"ACCESS_TTL"`
	// RollingWindowRaw is how long a session may go without a refresh before reauth (e.g. "168h").
	RollingWindowRaw string `mapstructure:"SESSION_ROLLING_WINDOW"`
	// ForcedWindowRaw is how long a session may go without a password proof before reauth (e.g. "720h").
	ForcedWindowRaw string `mapstructure:"SESSION_FORCED_WINDOW"`
	// MaxSessionsPerUser caps live sessions per account; older ones are pruned.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	totpKey []byte
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	v.AllowEmptyEnv(true) // HEALTH_ADDR= disables the probe

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HEALTH_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("TOTP_ENC_KEY", "")
	v.SetDefault("TOTP_ISSUER", "Transcendence")
	v.SetDefault("RECOVERY_CODE_COUNT", 10)
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("SESSION_ROLLING_WINDOW", "168h") // 7d
	v.SetDefault("SESSION_FORCED_WINDOW", "720h")  // 30d
	v.SetDefault("MAX_SESSIONS_PER_USER", 10)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MaxSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if cfg.RecoveryCodeCount < 1 {
		return nil, errors.New("config: RECOVERY_CODE_COUNT must be at least 1")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	if strings.TrimSpace(cfg.TOTPEncKey) != "" {
		key, err := security.ParseSymmetricKey(cfg.TOTPEncKey)
		if err != nil {
			return nil, fmt.Errorf("config: TOTP_ENC_KEY: %w", err)
		}
		cfg.totpKey = key
	} else if cfg.IsProduction() {
		return nil, errors.New("config: TOTP_ENC_KEY must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// TOTPKey returns the decoded TOTP encryption key, or nil when none is configured.
func (c *Config) TOTPKey() []byte {
	return c.totpKey
}

// AccessTTL parses AccessTTLRaw as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return positiveDuration(c.AccessTTLRaw, 15*time.Minute)
}

// RollingWindow parses RollingWindowRaw. Returns 168h if unset or invalid.
func (c *Config) RollingWindow() time.Duration {
	return positiveDuration(c.RollingWindowRaw, 7*24*time.Hour)
}

// ForcedWindow parses ForcedWindowRaw. Returns 720h if unset or invalid.
func (c *Config) ForcedWindow() time.Duration {
	return positiveDuration(c.ForcedWindowRaw, 30*24*time.Hour)
}

func positiveDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
