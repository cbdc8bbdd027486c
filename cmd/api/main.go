// Package main is the gamification HTTP API: user stats, XP history, badges,
// challenges and leaderboards, plus the admin endpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/gamification/config"
	"github.com/alem-hub/gamification/internal/bootstrap"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Service:     cfg.App.Name + "-api",
		Environment: string(cfg.App.Environment),
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := app.NewHTTPServer()
	if err != nil {
		return fmt.Errorf("failed to build HTTP server: %w", err)
	}
	if cfg.Admin.APIKeyHash == "" {
		log.Info("admin endpoints disabled: ADMIN_API_KEY_HASH is not set")
	}

	errCh := srv.StartAsync()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("received shutdown signal", zap.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}
