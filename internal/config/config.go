// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/database"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StoreDriver    string          `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath     string          `env:"SQLITE_PATH" envDefault:"data/tickets.db"`
	Postgres       database.Config `envPrefix:"DB_"`
	EventsSeedFile string          `env:"EVENTS_SEED_FILE"`

	JWTSecret      string `env:"JWT_SECRET"`
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"community-auth"`
	AuthDevHeaders bool   `env:"AUTH_DEV_HEADERS" envDefault:"false"`

	TicketSigningKey string `env:"TICKET_SIGNING_KEY" envDefault:"dev-ticket-key"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" && !c.AuthDevHeaders {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_DEV_HEADERS=true")
	}
	if strings.TrimSpace(c.TicketSigningKey) == "" {
		return fmt.Errorf("TICKET_SIGNING_KEY must not be empty")
	}
	return nil
}
