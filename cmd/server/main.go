// Package main is the entry point for the inventory backend server binary.
// It dispatches three subcommands, serve, migrate, and version, via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup so freshly deployed containers never need a separate migration
// step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medtrack/inventory-backend/internal/api"
	"github.com/medtrack/inventory-backend/internal/auth"
	"github.com/medtrack/inventory-backend/internal/config"
	"github.com/medtrack/inventory-backend/internal/db"
	"github.com/medtrack/inventory-backend/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("MedTrack Inventory Backend v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command %q (available: serve, migrate, version)", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Structured logging first, so everything after it uses the configured
	// format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails in production if no secret is set.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.DSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("cannot read migration version", "error", err)
	} else {
		slog.Info("database schema", "version", version, "dirty", dirty)
	}

	// DB pool statistics for Prometheus.
	dbStatsStop := make(chan struct{})
	go telemetry.PollDBStats(database, 15*time.Second, dbStatsStop)
	defer close(dbStatsStop)

	// Metrics are served on a dedicated port so the scrape path stays off the
	// public ingress and outside the rate-limiting middleware.
	if cfg.Telemetry.MetricsEnabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices := api.NewRouter(cfg, database)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Live-reload for settings that are safe to apply without a restart.
	config.Watch(configPath, func(fresh *config.Config) {
		telemetry.SetupLogger(fresh.Logging.Format, fresh.Logging.Level)
	})

	go func() {
		slog.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown did not complete cleanly: %w", err)
	}

	// Stop limiter goroutines after in-flight requests have drained.
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.DSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		slog.Warn("cannot read migration version", "error", err)
	} else {
		slog.Info("migration complete", "direction", direction, "version", version, "dirty", dirty)
	}
	return nil
}
