// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HANDLER ENVIRONMENT
// ══════════════════════════════════════════════════════════════════════════════

// Env bundles the collaborators every command handler needs.
type Env struct {
	Store     uow.Store
	Publisher shared.EventPublisher
	Clock     timeutil.Clock
	Calendar  timeutil.Calendar
	Logger    *zap.Logger
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = timeutil.SystemClock
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return e
}

// txScope carries per-transaction state through nested in-transaction calls.
type txScope struct {
	repos  uow.Repositories
	now    time.Time
	events []shared.Event
}

func (tx *txScope) emit(events ...shared.Event) {
	tx.events = append(tx.events, events...)
}

// run executes fn in one transaction and publishes the collected events after commit.
// Events are dropped when the transaction rolls back.
func (e Env) run(ctx context.Context, fn func(ctx context.Context, tx *txScope) error) error {
	var events []shared.Event
	now := e.Clock()

	err := e.Store.WithinTx(ctx, func(ctx context.Context, repos uow.Repositories) error {
		tx := &txScope{repos: repos, now: now}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events)
	return nil
}

func (e Env) publish(ctx context.Context, events []shared.Event) {
	if e.Publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.Publisher.Publish(ctx, ev); err != nil {
			e.Logger.Warn("failed to publish event",
				logger.EventType(string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}

// storageErr classifies a repository error. Domain errors pass through;
// anything else is a retryable storage failure.
func storageErr(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.StorageError(domain, op, err)
}
