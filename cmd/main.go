// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/auth"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/catalog"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/memory"
	pgstore "github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/postgres"
	sqlitestore "github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/telemetry"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/ticket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)
	if cfg.AuthDevHeaders {
		log.Warn("AUTH_DEV_HEADERS is enabled; debug identity headers are trusted")
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown", "err", err)
		}
	}()

	// ── 2. Storage ───────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store ready", "driver", cfg.StoreDriver)

	if cfg.EventsSeedFile != "" {
		events, err := catalog.LoadFile(cfg.EventsSeedFile)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		if err := catalog.Seed(ctx, store, events); err != nil {
			return err
		}
		log.Info("event catalog seeded", "file", cfg.EventsSeedFile, "events", len(events))
	}

	// ── 3. Metrics and notifications ─────────────────────────────────────
	m := metrics.New()
	dropCounter := notify.WithDropCounter(m.NotifyDropped)
	var bus notify.Bus = notify.NewHub(dropCounter)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn("redis close", "err", err)
			}
		}()
		bus = notify.NewRedis(client, log, dropCounter)
		log.Info("registration changes via redis", "addr", cfg.RedisAddr)
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	svc := service.New(service.Deps{
		Store:   store,
		Issuer:  ticket.NewIssuer(cfg.TicketSigningKey, nil),
		Bus:     bus,
		Metrics: m,
		Logger:  log,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Services: svc,
		Auth: auth.Options{
			Secret:     cfg.JWTSecret,
			Issuer:     cfg.JWTIssuer,
			DevHeaders: cfg.AuthDevHeaders,
		},
		Metrics: m.Handler(),
		Logger:  log,
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := newServer(fmt.Sprintf(":%s", cfg.Port), router)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newServer builds the HTTP server. Request contexts derive from a root
// context that is canceled when Shutdown starts, so long-lived streams end
// instead of holding the shutdown open.
func newServer(addr string, h http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

type seedableStore interface {
	repository.Store
	catalog.EventWriter
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (seedableStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return sqlitestore.New(db), nil
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgstore.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
