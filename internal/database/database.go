// Package database manages connections and schema for the SQL backends:
// a pgx pool for PostgreSQL and a database/sql handle for SQLite.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection settings. Fields are read with the DB_
// prefix by the config package.
type Config struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	DBName   string `env:"NAME" envDefault:"eventbooking"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg Config, log *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	err = retryConnect(ctx, connectAttempts, connectBackoff, log, func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pool, nil
}

// retryConnect calls try up to attempts times, sleeping wait between
// attempts. There is no sleep after the final failure.
func retryConnect(ctx context.Context, attempts int, wait time.Duration, log *slog.Logger, try func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = try(); err == nil {
			return nil
		}
		log.Warn("db connect attempt failed", "attempt", attempt, "max_attempts", attempts, "err", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// MigratePostgres creates the tables the core owns. The events table belongs
// to the catalog and is only created when absent so local setups work.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	event_type       TEXT NOT NULL,
	starts_at        TIMESTAMPTZ NOT NULL,
	ends_at          TIMESTAMPTZ NOT NULL,
	location         TEXT NOT NULL DEFAULT '',
	venue            TEXT NOT NULL DEFAULT '',
	online_link      TEXT NOT NULL DEFAULT '',
	accepts_partners BOOLEAN NOT NULL DEFAULT FALSE,
	status           TEXT NOT NULL,
	approved         BOOLEAN NOT NULL DEFAULT FALSE,
	max_participants INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id        TEXT PRIMARY KEY,
	event_id         TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	capacity         TEXT NOT NULL CHECK (capacity IN ('participant', 'partner')),
	organization_id  TEXT NOT NULL DEFAULT '',
	event_title      TEXT NOT NULL,
	event_type       TEXT NOT NULL,
	event_starts_at  TIMESTAMPTZ NOT NULL,
	event_ends_at    TIMESTAMPTZ NOT NULL,
	event_location   TEXT NOT NULL DEFAULT '',
	event_venue      TEXT NOT NULL DEFAULT '',
	event_link       TEXT NOT NULL DEFAULT '',
	issued_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS tickets_user_idx ON tickets (user_id, issued_at DESC);

CREATE TABLE IF NOT EXISTS registrations (
	event_id         TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	capacity         TEXT NOT NULL CHECK (capacity IN ('participant', 'partner')),
	organization_id  TEXT NOT NULL DEFAULT '',
	ticket_id        TEXT NOT NULL UNIQUE REFERENCES tickets (ticket_id),
	created_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, user_id)
);
`
