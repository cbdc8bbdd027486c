package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimRewardCommand acknowledges a completed challenge.
type ClaimRewardCommand struct {
	UserID       int64
	AssignmentID uuid.UUID
}

// ClaimRewardHandler marks completed assignments as claimed.
// Points were already paid at completion; claiming never pays again.
type ClaimRewardHandler struct {
	env    Env
	logger *zap.Logger
}

// NewClaimRewardHandler creates a new ClaimRewardHandler.
func NewClaimRewardHandler(env Env) *ClaimRewardHandler {
	env = env.withDefaults()
	return &ClaimRewardHandler{
		env:    env,
		logger: env.Logger.With(logger.Component("challenge_engine")),
	}
}

// Handle executes the claim.
func (h *ClaimRewardHandler) Handle(ctx context.Context, cmd ClaimRewardCommand) (*challenge.Assignment, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if cmd.AssignmentID == uuid.Nil {
		return nil, shared.ErrAssignmentNotFound
	}

	var claimed *challenge.Assignment
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		a, err := tx.repos.Challenges.GetAssignmentForUpdate(ctx, cmd.AssignmentID)
		if err != nil {
			return storageErr("challenge", "Claim", err)
		}
		// other users' assignments are indistinguishable from missing ones
		if a.UserID() != cmd.UserID {
			return shared.ErrAssignmentNotFound
		}

		if err := a.Claim(tx.now); err != nil {
			return err
		}
		if err := tx.repos.Challenges.SaveAssignment(ctx, a); err != nil {
			return storageErr("challenge", "SaveAssignment", err)
		}

		tx.emit(shared.NewChallengeClaimedEvent(a.UserID(), a.ID().String()))
		claimed = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim reward: %w", err)
	}

	h.logger.Info("challenge reward claimed",
		logger.UserID(cmd.UserID),
		logger.AssignmentID(cmd.AssignmentID.String()),
	)
	return claimed, nil
}
