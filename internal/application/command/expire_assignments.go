package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// DefaultExpireBatchSize bounds the rows locked by one sweep transaction.
const DefaultExpireBatchSize = 500

// ExpireResult reports an expiration sweep.
type ExpireResult struct {
	Expired int
	Batches int
}

// ExpireAssignmentsHandler moves overdue pending and in-progress
// assignments to expired. Expired is terminal so re-running is a no-op.
type ExpireAssignmentsHandler struct {
	env       Env
	batchSize int
	logger    *zap.Logger
}

// NewExpireAssignmentsHandler creates a new ExpireAssignmentsHandler.
func NewExpireAssignmentsHandler(env Env, batchSize int) *ExpireAssignmentsHandler {
	env = env.withDefaults()
	if batchSize <= 0 {
		batchSize = DefaultExpireBatchSize
	}
	return &ExpireAssignmentsHandler{
		env:       env,
		batchSize: batchSize,
		logger:    env.Logger.With(logger.Component("challenge_engine")),
	}
}

// Handle sweeps in batches until no overdue assignment is left.
func (h *ExpireAssignmentsHandler) Handle(ctx context.Context) (*ExpireResult, error) {
	started := time.Now()
	result := &ExpireResult{}

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("expire assignments: %w", err)
		}

		n, err := h.expireBatch(ctx)
		if err != nil {
			return result, fmt.Errorf("expire assignments: %w", err)
		}
		if n == 0 {
			break
		}
		result.Expired += n
		result.Batches++
		if n < h.batchSize {
			break
		}
	}

	if result.Expired > 0 {
		h.logger.Info("assignments expired",
			zap.Int("expired", result.Expired),
			zap.Int("batches", result.Batches),
			logger.Latency(time.Since(started)),
		)
	}
	return result, nil
}

func (h *ExpireAssignmentsHandler) expireBatch(ctx context.Context) (int, error) {
	expired := 0
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		expired = 0
		overdue, err := tx.repos.Challenges.ListOverdueForUpdate(ctx, tx.now, h.batchSize)
		if err != nil {
			return storageErr("challenge", "ListOverdue", err)
		}

		for _, a := range overdue {
			if err := a.Expire(tx.now); err != nil {
				return err
			}
			if err := tx.repos.Challenges.SaveAssignment(ctx, a); err != nil {
				return storageErr("challenge", "SaveAssignment", err)
			}
			expired++
		}
		return nil
	})
	return expired, err
}
