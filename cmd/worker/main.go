// Package main is the gamification worker. It consumes learning events from
// NATS JetStream and runs the periodic jobs: challenge assignment, expiration
// and leaderboard recomputation.
//
// With -migrate=up|down|status it runs one schema operation and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/gamification/config"
	"github.com/alem-hub/gamification/internal/bootstrap"
	"github.com/alem-hub/gamification/internal/infrastructure/messaging"
	"github.com/alem-hub/gamification/internal/infrastructure/scheduler"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/alem-hub/gamification/pkg/retry"
	"go.uber.org/zap"
)

func main() {
	migrate := flag.String("migrate", "", "run a schema migration (up, down, status) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, migrate string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Service:     cfg.App.Name + "-worker",
		Environment: string(cfg.App.Environment),
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if migrate != "" {
		return bootstrap.RunMigration(ctx, cfg, log, migrate)
	}

	log.Info("starting gamification worker",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("version", cfg.App.Version),
		zap.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE, CACHE, HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT CONSUMER
	// ─────────────────────────────────────────────────────────────────────────
	var consumer *messaging.Consumer
	if cfg.NATS.Enabled {
		consumer, err = app.NewConsumer()
		if err != nil {
			return fmt.Errorf("failed to build consumer: %w", err)
		}

		retrier := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
			log.Warn("nats not ready, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), logger.Err(err))
		})
		if err := retrier.Do(ctx, consumer.Start); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
		defer func() {
			log.Info("stopping event consumer...")
			if err := consumer.Stop(); err != nil {
				log.Warn("consumer stop failed", logger.Err(err))
			}
		}()
	} else {
		log.Warn("NATS disabled; learning events are not consumed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = app.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to build scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		for _, j := range sched.ListJobs() {
			log.Info("job scheduled",
				logger.Job(j.Name),
				zap.String("schedule", j.Schedule),
				zap.Time("next_run", j.NextRun),
			)
		}
	}

	if consumer == nil && sched == nil {
		log.Warn("nothing to run: NATS and scheduler are both disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("gamification worker is running")
	<-ctx.Done()
	log.Info("received shutdown signal", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	if sched != nil {
		done := make(chan error, 1)
		go func() { done <- sched.Stop() }()
		select {
		case err := <-done:
			if err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
		case <-time.After(cfg.App.ShutdownTimeout):
			log.Warn("scheduler did not stop in time; abandoning running jobs")
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}
