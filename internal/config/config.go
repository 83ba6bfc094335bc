package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingCredentials is returned by Validate when a required secret is
// absent. It is the only fatal startup condition.
var ErrMissingCredentials = errors.New("missing required credentials")

type Config struct {
	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"account_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// JWT sessions
	JWTSecret        string        `env:"JWT_SECRET"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`

	// OAuth
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`
	FacebookClientID     string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"FACEBOOK_CLIENT_SECRET"`
	OAuthRedirectURL     string `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`

	// Auth-state bridge
	AuthInitTimeout time.Duration `env:"AUTH_INIT_TIMEOUT" envDefault:"10s"`

	// Server
	Port        string `env:"PORT" envDefault:"8080"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	SentryDSN   string `env:"SENTRY_DSN"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate fails fast when the two required credential values are absent,
// so misconfiguration surfaces before anything listens.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingCredentials)
	}
	if c.DBPassword == "" {
		return fmt.Errorf("%w: DB_PASSWORD", ErrMissingCredentials)
	}
	return nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}
