// Package config loads backend configuration from an optional YAML file
// overlaid with environment variables. Defaults are chosen so the server
// boots with no configuration at all (in-memory storage, local uploads).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Storage driver names accepted by StorageConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// Config is the root configuration for the API server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ops       OpsConfig       `yaml:"ops"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the main HTTP listener.
type ServerConfig struct {
	Host         string `yaml:"host" env:"SERVER_HOST"`
	Port         int    `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  int    `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout int    `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  int    `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// OpsConfig controls the metrics/pprof listener.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled" env:"OPS_ENABLED"`
	Host    string `yaml:"host" env:"OPS_HOST"`
	Port    int    `yaml:"port" env:"OPS_PORT"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
}

// DatabaseConfig configures the postgres driver.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	Migrate         bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

// SupabaseConfig configures the managed-backend driver and storage bucket.
type SupabaseConfig struct {
	URL        string `yaml:"url" env:"SUPABASE_URL"`
	ServiceKey string `yaml:"service_key" env:"SUPABASE_SERVICE_KEY"`
	Bucket     string `yaml:"bucket" env:"SUPABASE_STORAGE_BUCKET"`
}

// RedisConfig configures the leaderboard cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuthConfig configures tokens, sessions and admin bootstrap.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTLHours int    `yaml:"token_ttl_hours" env:"AUTH_TOKEN_TTL_HOURS"`
	AdminEmails   string `yaml:"admin_emails" env:"ADMIN_EMAILS"`
}

// ScorerConfig points at the assessment scoring service. An empty URL
// selects the in-process mock.
type ScorerConfig struct {
	URL     string `yaml:"url" env:"SCORER_URL"`
	APIKey  string `yaml:"api_key" env:"SCORER_API_KEY"`
	Timeout int    `yaml:"timeout" env:"SCORER_TIMEOUT"`
}

// UploadsConfig configures image storage.
type UploadsConfig struct {
	Backend   string `yaml:"backend" env:"UPLOADS_BACKEND"`
	LocalDir  string `yaml:"local_dir" env:"UPLOADS_DIR"`
	PublicURL string `yaml:"public_url" env:"UPLOADS_PUBLIC_URL"`
	MaxBytes  int64  `yaml:"max_bytes" env:"UPLOADS_MAX_BYTES"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int  `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// CORSConfig holds the comma-separated allowed origins.
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// JobsConfig configures the maintenance scheduler.
type JobsConfig struct {
	Enabled               bool   `yaml:"enabled" env:"JOBS_ENABLED"`
	LeaderboardRefresh    string `yaml:"leaderboard_refresh" env:"JOBS_LEADERBOARD_REFRESH"`
	SessionPurge          string `yaml:"session_purge" env:"JOBS_SESSION_PURGE"`
	UsagePrune            string `yaml:"usage_prune" env:"JOBS_USAGE_PRUNE"`
	UsageRetentionMonths  int    `yaml:"usage_retention_months" env:"JOBS_USAGE_RETENTION_MONTHS"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 30,
			IdleTimeout:  60,
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9090,
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			Migrate:         true,
		},
		Auth: AuthConfig{
			JWTSecret:     "dev-secret-change-in-production",
			TokenTTLHours: 24,
		},
		Scorer: ScorerConfig{Timeout: 5},
		Uploads: UploadsConfig{
			Backend:   "local",
			LocalDir:  "data/uploads",
			PublicURL: "/uploads",
			MaxBytes:  2 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Jobs: JobsConfig{
			Enabled:              true,
			LeaderboardRefresh:   "@hourly",
			SessionPurge:         "@daily",
			UsagePrune:           "@daily",
			UsageRetentionMonths: 12,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// READSPEED_CONFIG (default config.yaml, missing file is fine), and the
// environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("READSPEED_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver-specific requirements.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("storage driver %q requires DATABASE_URL", c.Storage.Driver)
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("storage driver %q requires SUPABASE_URL and SUPABASE_SERVICE_KEY", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Uploads.Backend == "supabase" && c.Supabase.Bucket == "" {
		return fmt.Errorf("uploads backend %q requires SUPABASE_STORAGE_BUCKET", c.Uploads.Backend)
	}
	return nil
}

// AdminEmailList returns the bootstrap admin emails, lower-cased.
func (c *Config) AdminEmailList() []string {
	return splitCSV(c.Auth.AdminEmails)
}

// AllowedOriginList returns the configured CORS origins.
func (c *Config) AllowedOriginList() []string {
	return splitCSV(c.CORS.AllowedOrigins)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
