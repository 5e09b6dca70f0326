/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the variance engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (TOML file, .env, environment), then apply flags
  2. Build the zerolog logger
  3. Open SQLite (items, and runs/thresholds unless PostgreSQL is set)
  4. Connect PostgreSQL when a database URL is configured
  5. Start the in-memory result cache janitor
  6. Build reconcile.Service, API handler and router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     TOML config path (default: variance.toml, optional)
  -port       HTTP server port (overrides config)
  -db         SQLite database path (overrides config)
              Use ":memory:" for in-memory database
  -log-level  debug, info, warn, error (overrides config)

ENVIRONMENT:
  VARIANCE_PORT, VARIANCE_DB, DATABASE_URL, VARIANCE_LOG_LEVEL,
  VARIANCE_CACHE_TTL, VARIANCE_WORKERS (see config package)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (shutdown_timeout)
  3. Stop the cache janitor, close database connections
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
  - reconcile/service.go: Run orchestration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/variance-engine/api"
	"github.com/warp/variance-engine/cache"
	"github.com/warp/variance-engine/config"
	"github.com/warp/variance-engine/logger"
	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/store/postgres"
	"github.com/warp/variance-engine/store/sqlite"
	"github.com/warp/variance-engine/variance"
)

func main() {
	configPath := flag.String("config", "variance.toml", "TOML config path")
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	logLevel := flag.String("log-level", "", "Log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info").Fatal().Err(err).Msg("failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.SQLitePath = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := newLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	if cfg.JSON {
		return logger.NewJSON(os.Stdout, cfg.Level)
	}
	return logger.New(cfg.Level)
}

func run(cfg config.Config, log zerolog.Logger) error {
	defaults, err := cfg.DefaultThresholds()
	if err != nil {
		return err
	}

	items, err := sqlite.New(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer items.Close()
	items.WithDefaultThresholds(defaults)

	var (
		results    variance.ResultStore    = items
		thresholds variance.ThresholdStore = items
	)
	if cfg.Storage.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			cancel()
			return err
		}
		defer pool.Close()

		pg := postgres.New(pool).WithDefaultThresholds(defaults)
		err = pg.Migrate(ctx)
		cancel()
		if err != nil {
			return err
		}
		results, thresholds = pg, pg
		log.Info().Msg("using PostgreSQL for runs and thresholds")
	}

	resultCache := cache.NewMemory(log)
	resultCache.CleanupInterval = cfg.Cache.CleanupInterval.Duration
	resultCache.Start()
	defer resultCache.Stop()

	svc := reconcile.New(items, items, results, thresholds, log).WithCache(resultCache, cfg.Cache.TTL.Duration)
	if cfg.Batch.Workers > 0 {
		svc.Workers = cfg.Batch.Workers
	}

	handler := api.NewHandler(svc, items, log)
	router := api.NewRouter(handler, log, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("sqlite", cfg.Storage.SQLitePath).
			Str("profile", string(defaults.Profile)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	return server.Shutdown(ctx)
}
