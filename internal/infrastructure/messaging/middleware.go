package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// Middleware wraps an event handler.
type Middleware func(shared.EventHandler) shared.EventHandler

// chain applies middlewares so the first one is outermost.
func chain(h shared.EventHandler, mws []Middleware) shared.EventHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RecoveryMiddleware turns a handler panic into ErrHandlerPanic.
func RecoveryMiddleware(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(ctx context.Context, event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.EventType(string(event.EventType())),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, event)
		}
	}
}

// LoggingMiddleware logs every handler run at debug level and failures at warn.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(ctx context.Context, event shared.Event) error {
			start := time.Now()
			err := next(ctx, event)

			fields := []zap.Field{
				logger.EventType(string(event.EventType())),
				zap.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
			}
			if err != nil {
				log.Warn("event handler failed", append(fields, logger.Err(err))...)
				return err
			}
			log.Debug("event handled", fields...)
			return nil
		}
	}
}

// TimeoutMiddleware bounds the handler's context.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, event shared.Event) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, event)
		}
	}
}
