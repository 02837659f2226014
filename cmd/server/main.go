// Package main is the entry point for the DPC admin panel server binary.
// Subcommands: serve (default), migrate <up|down>, version, export-users.
// serve applies pending migrations before it starts listening.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpc-platform/dpc-admin/internal/api"
	"github.com/dpc-platform/dpc-admin/internal/auth"
	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
	"github.com/dpc-platform/dpc-admin/internal/jobs"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
)

var version = "0.1.0"

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

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if command == "version" {
		fmt.Printf("DPC Admin v%s\n", version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")

	switch command {
	case "serve":
		return serve(configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return runMigrations(cfg, os.Args[2])
	case "export-users":
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return exportUsers(cfg)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version, export-users", command)
	}
}

func serve(configPath string) error {
	// Reloads arrive on the watcher goroutine.
	var bgServices atomic.Pointer[api.BackgroundServices]
	var current atomic.Pointer[config.Config]

	cfg, err := config.Watch(configPath, func(next *config.Config) {
		bg := bgServices.Load()
		if bg == nil {
			return
		}
		for _, change := range config.ReloadableChanges(current.Swap(next), next) {
			slog.Info("applying configuration change", "change", change)
		}
		bg.Reload(next)
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	current.Store(cfg)

	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"name", cfg.Database.Name,
		"sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	// Metrics are served on a dedicated port so the scrape path stays off the panel ingress.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	api.Version = version
	router, bg, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	bgServices.Store(bg)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"tls", cfg.Security.TLS.Enabled,
			"events", cfg.Events.Backend,
			"exports_archived", cfg.Exports.ArchiveEnabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		bg.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}

	// Stop background jobs, rate limiters, publishers and shippers
	bg.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// exportUsers archives one user export immediately and verifies what was stored.
func exportUsers(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if !cfg.Exports.ArchiveEnabled {
		return fmt.Errorf("exports.archive_enabled is false; nothing to archive to")
	}

	archiver, _, err := api.NewArchiver(cfg)
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	users := repositories.NewUserRepository(sqlx.NewDb(database, "postgres"))
	job := jobs.NewUserExportJob(users, archiver, &cfg.Exports)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := job.Run(ctx, jobs.TriggerManual)
	if err != nil {
		return err
	}
	if err := archiver.Verify(ctx, res.Path); err != nil {
		return fmt.Errorf("archived export failed verification: %w", err)
	}

	fmt.Printf("Archived %s (sha256 %s)\n", res.Path, res.Checksum)
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", v, dirty)
	return nil
}
