// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyward-dev/keyward/internal/api"
	"github.com/keyward-dev/keyward/internal/api/handlers"
	"github.com/keyward-dev/keyward/internal/cache"
	"github.com/keyward-dev/keyward/internal/config"
	"github.com/keyward-dev/keyward/internal/db"
	"github.com/keyward-dev/keyward/internal/logger"
	"github.com/keyward-dev/keyward/internal/rbac"
	"gorm.io/gorm"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Mode    string // Gin mode override: development or production
	Version string // Version string to report
	Quiet   bool   // Only log warnings and errors (CLI commands)
}

// Bootstrap loads configuration and prepares the database for use: logging,
// migrations, the RBAC enforcer and the default admin.
// CLI commands share it with Run.
func Bootstrap(cfg Config) (*config.Config, *gorm.DB, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override from CLI flags if provided
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}
	if cfg.Mode != "" {
		appCfg.Server.Mode = cfg.Mode
	}

	if cfg.Quiet {
		appCfg.Log.Level = "warn"
	}
	logger.Init(appCfg.Log)

	// Propagate app log level to database if not explicitly set
	if appCfg.Database.LogLevel == "" {
		appCfg.Database.LogLevel = appCfg.Log.Level
	}

	database, err := db.New(appCfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", appCfg.Database.Driver)

	if err := db.Migrate(database); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Database migrations completed")

	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize RBAC: %w", err)
	}

	if err := db.CreateDefaultAdmin(database); err != nil {
		return nil, nil, fmt.Errorf("failed to create default admin user: %w", err)
	}
	return appCfg, database, nil
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	// Set version in handlers
	if cfg.Version != "" {
		handlers.Version = cfg.Version
	}

	appCfg, database, err := Bootstrap(cfg)
	if err != nil {
		return err
	}
	slog.Info("Starting Keyward server", "version", handlers.Version, "mode", appCfg.Server.Mode)

	installationID, err := db.EnsureInstallationID(database)
	if err != nil {
		return fmt.Errorf("failed to initialize installation ID: %w", err)
	}
	slog.Info("Installation ID initialized", "installation_id", installationID)

	snapshotCache, err := cache.New(appCfg.Cache, installationID)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot cache: %w", err)
	}
	defer snapshotCache.Close()
	slog.Info("Snapshot cache initialized", "type", appCfg.Cache.Type)

	router := api.NewRouter(appCfg, database, snapshotCache)

	addr := fmt.Sprintf(":%d", appCfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or a listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}

	slog.Info("Keyward exited")
	return nil
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	// Wait for signal or error
	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig)
		cancel()
		// Wait for server to finish
		return <-errCh
	case err := <-errCh:
		return err
	}
}
