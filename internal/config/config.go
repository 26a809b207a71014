package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/hickoryhq/hickory/pkg/config"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"hickory"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"hickory_secret"`
	PostgresDB            string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"10"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Commands past this budget fail and the replay guard fails open.
	RedisTimeoutMs int `env:"REDIS_TIMEOUT_MS" envDefault:"200"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret            string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"hickory"`
	JWTAudience          string `env:"JWT_AUDIENCE" envDefault:"hickory-clients"`
	JWTAccessExpiryMins  int    `env:"JWT_ACCESS_TOKEN_EXPIRY_MINUTES" envDefault:"15"`
	RefreshTokenLifetime string `env:"REFRESH_TOKEN_LIFETIME" envDefault:"720h"`

	// Sessions and two-factor
	MaxActiveSessions int    `env:"MAX_ACTIVE_SESSIONS" envDefault:"5"`
	TOTPIssuer        string `env:"TOTP_ISSUER" envDefault:"Hickory"`
	TOTPReplayWindow  string `env:"TOTP_REPLAY_WINDOW" envDefault:"90s"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"12"`

	// Rate limiting on the public auth endpoints
	LoginRateLimitRPS     float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateLimitBurst   int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"10"`
	TrustForwardedHeaders bool    `env:"TRUST_FORWARDED_HEADERS" envDefault:"false"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.MaxActiveSessions < 1 {
		return fmt.Errorf("MAX_ACTIVE_SESSIONS must be positive, got %d", c.MaxActiveSessions)
	}
	if c.JWTAccessExpiryMins < 1 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY_MINUTES must be positive, got %d", c.JWTAccessExpiryMins)
	}
	if _, err := time.ParseDuration(c.RefreshTokenLifetime); err != nil {
		return fmt.Errorf("parse REFRESH_TOKEN_LIFETIME %q: %w", c.RefreshTokenLifetime, err)
	}
	if _, err := time.ParseDuration(c.TOTPReplayWindow); err != nil {
		return fmt.Errorf("parse TOTP_REPLAY_WINDOW %q: %w", c.TOTPReplayWindow, err)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	return nil
}

// AccessTokenTTL returns the access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTAccessExpiryMins) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime. Load has already
// validated the value.
func (c *Config) RefreshTokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.RefreshTokenLifetime)
	return d
}

// ReplayWindow returns how long an accepted TOTP code stays burned.
func (c *Config) ReplayWindow() time.Duration {
	d, _ := time.ParseDuration(c.TOTPReplayWindow)
	return d
}
