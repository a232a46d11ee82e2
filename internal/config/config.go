package config

import (
	"errors"
	"os"
	"strconv"
)

// DefaultJWTSecret is the placeholder used when APP_JWT_SECRET is unset.
// Validate rejects it outside development.
const DefaultJWTSecret = "changeme"

var ErrDefaultJWTSecret = errors.New("APP_JWT_SECRET must be set outside development")

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables (optionally via a .env
// file loaded in main), with defaults where appropriate.
type Config struct {
	// Env is "development" or anything else; only development tolerates
	// insecure defaults.
	Env string

	DatabaseURL string

	// MaxOpenConns bounds the connection pool shared by all uploads.
	MaxOpenConns int

	ListenAddr string

	// JWTSecret signs and verifies identity tokens (HS256).
	JWTSecret string

	LogLevel  string
	LogFormat string

	// MaxUploadBytes caps the size of a single uploaded export file.
	MaxUploadBytes int

	// RecommendationRetentionDays is how long dismissed recommendations
	// are kept before the retention job removes them.
	RecommendationRetentionDays int

	// Cron specs for the background jobs. Empty disables the job.
	ReconcileSchedule string
	RetentionSchedule string

	// Bootstrap user created on startup when both are set.
	BootstrapUser     string
	BootstrapPassword string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		Env:                         getenv("APP_ENV", "production"),
		DatabaseURL:                 os.Getenv("APP_DATABASE_URL"),
		MaxOpenConns:                getenvInt("APP_DB_MAX_OPEN_CONNS", 10),
		ListenAddr:                  getenv("APP_LISTEN_ADDR", ":8080"),
		JWTSecret:                   getenv("APP_JWT_SECRET", DefaultJWTSecret),
		LogLevel:                    getenv("APP_LOG_LEVEL", "info"),
		LogFormat:                   getenv("APP_LOG_FORMAT", "json"),
		MaxUploadBytes:              getenvInt("APP_MAX_UPLOAD_BYTES", 20<<20),
		RecommendationRetentionDays: getenvInt("APP_RECOMMENDATION_RETENTION_DAYS", 90),
		ReconcileSchedule:           getenv("APP_RECONCILE_SCHEDULE", "0 3 * * *"),
		RetentionSchedule:           getenv("APP_RETENTION_SCHEDULE", "30 3 * * *"),
		BootstrapUser:               os.Getenv("APP_BOOTSTRAP_USER"),
		BootstrapPassword:           os.Getenv("APP_BOOTSTRAP_PASSWORD"),
	}
	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// InsecureJWTSecret reports whether tokens would be signed with the public
// placeholder secret.
func (c *Config) InsecureJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// Validate checks settings that must not fall back to defaults in a
// deployed environment.
func (c *Config) Validate() error {
	if c.InsecureJWTSecret() && !c.IsDevelopment() {
		return ErrDefaultJWTSecret
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvInt returns def unless the variable holds a positive integer.
func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
