// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"
)

// Config holds application configuration.
type Config struct {
	Port        string
	DatabaseURL string
	// Migrate applies embedded migrations on boot when a database is configured.
	Migrate bool

	LogLevel  slog.Level
	LogFormat string

	// JWTSecret enables bearer auth; empty disables it.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RateLimit limiter.Rate

	LockTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration

	Currency string
	DevSeed  bool

	CardSourceLabel    string
	PartnerSourceLabel string
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return ":" + strings.TrimPrefix(c.Port, ":") }

// AuthEnabled reports whether requests must carry a bearer token.
func (c Config) AuthEnabled() bool { return c.JWTSecret != "" }

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "tillbook")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("RATE_LIMIT", "300-M")
	v.SetDefault("LOCK_TIMEOUT", "2s")
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BACKOFF", "50ms")
	v.SetDefault("CURRENCY", "LKR")
	v.SetDefault("DEV_SEED", false)
	v.SetDefault("CARD_SOURCE_LABEL", "")
	v.SetDefault("PARTNER_SOURCE_LABEL", "")
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:               strings.TrimSpace(v.GetString("PORT")),
		DatabaseURL:        strings.TrimSpace(v.GetString("DATABASE_URL")),
		Migrate:            v.GetBool("MIGRATE"),
		LogLevel:           ParseLogLevel(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		JWTAudience:        v.GetString("JWT_AUDIENCE"),
		LockTimeout:        v.GetDuration("LOCK_TIMEOUT"),
		MaxAttempts:        v.GetInt("MAX_ATTEMPTS"),
		RetryBackoff:       v.GetDuration("RETRY_BACKOFF"),
		Currency:           strings.ToUpper(strings.TrimSpace(v.GetString("CURRENCY"))),
		DevSeed:            v.GetBool("DEV_SEED"),
		CardSourceLabel:    v.GetString("CARD_SOURCE_LABEL"),
		PartnerSourceLabel: v.GetString("PARTNER_SOURCE_LABEL"),
	}
	rate, err := limiter.NewRateFromFormatted(v.GetString("RATE_LIMIT"))
	if err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	cfg.RateLimit = rate
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LockTimeout <= 0 {
		return Config{}, fmt.Errorf("LOCK_TIMEOUT must be > 0")
	}
	if cfg.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("MAX_ATTEMPTS must be >= 1")
	}
	if cfg.RetryBackoff < 0 {
		return Config{}, fmt.Errorf("RETRY_BACKOFF must be >= 0")
	}
	if cfg.LogFormat != "text" {
		cfg.LogFormat = "json"
	}
	return cfg, nil
}

// ParseLogLevel maps env values to slog levels; unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
