// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the GeoChat
// service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// RateLimitConfig defines a per-connection token bucket.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr           string          `env:"SERVER_ADDR" envDefault:":8080"`
	AllowedOrigins []string        `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxMessageSize int64           `env:"MAX_MESSAGE_SIZE" envDefault:"8192"`
	RateLimit      RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	FixRateLimit   RateLimitConfig `envPrefix:"FIX_RATE_LIMIT_"`
	AuthTimeout    time.Duration   `env:"AUTH_TIMEOUT" envDefault:"10s"`

	OutsideGrace      time.Duration `env:"OUTSIDE_GRACE" envDefault:"10s"`
	UnboundSessionTTL time.Duration `env:"UNBOUND_SESSION_TTL" envDefault:"10m"`

	AdminKey      string  `env:"ADMIN_KEY"`
	BaseURL       string  `env:"BASE_URL"`
	DefaultRadius float64 `env:"DEFAULT_RADIUS" envDefault:"90"`
	VenuesFile    string  `env:"VENUES_FILE" envDefault:"places.json"`
	VenuesSQLite  string  `env:"VENUES_SQLITE"`

	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewConfig creates a Config instance populated with default values for
// all settings, ignoring the process environment.
func NewConfig() *Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("server: invalid config defaults: %v", err))
	}
	cfg.sanitize()
	return &cfg
}

// LoadConfig reads an optional .env file and then the environment.
// Unset or invalid numeric values fall back to defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

func (c *Config) sanitize() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8192
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.FixRateLimit.Burst <= 0 {
		c.FixRateLimit.Burst = 10
	}
	if c.FixRateLimit.RefillInterval <= 0 {
		c.FixRateLimit.RefillInterval = 5 * time.Second
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.OutsideGrace <= 0 {
		c.OutsideGrace = 10 * time.Second
	}
	if c.DefaultRadius <= 0 {
		c.DefaultRadius = 90
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}
