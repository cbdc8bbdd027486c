package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateChallengeCommand contains an administrator-authored template.
type CreateChallengeCommand struct {
	Title        string
	Description  string
	Type         challenge.Type
	Criteria     challenge.Criteria
	PointsReward int64
	BadgeID      *uuid.UUID

	// StartAt defaults to now when zero.
	StartAt time.Time
	EndAt   *time.Time
}

// CreateChallengeHandler registers challenge templates.
type CreateChallengeHandler struct {
	env    Env
	logger *zap.Logger
}

// NewCreateChallengeHandler creates a new CreateChallengeHandler.
func NewCreateChallengeHandler(env Env) *CreateChallengeHandler {
	env = env.withDefaults()
	return &CreateChallengeHandler{
		env:    env,
		logger: env.Logger.With(logger.Component("challenge_engine")),
	}
}

// Handle validates and stores the template. A referenced badge must exist.
func (h *CreateChallengeHandler) Handle(ctx context.Context, cmd CreateChallengeCommand) (*challenge.Challenge, error) {
	var created *challenge.Challenge
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		start := cmd.StartAt
		if start.IsZero() {
			start = tx.now
		}

		c, err := challenge.NewChallenge(cmd.Title, cmd.Description, cmd.Type, cmd.Criteria,
			cmd.PointsReward, cmd.BadgeID, start, cmd.EndAt, tx.now)
		if err != nil {
			return err
		}

		if c.BadgeID != nil {
			if _, err := tx.repos.Badges.GetByID(ctx, *c.BadgeID); err != nil {
				return storageErr("badge", "GetByID", err)
			}
		}

		if err := tx.repos.Challenges.CreateChallenge(ctx, c); err != nil {
			return storageErr("challenge", "CreateChallenge", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	h.logger.Info("challenge created",
		zap.String("challenge_id", created.ID.String()),
		zap.String("type", string(created.Type)),
		zap.String("criteria", string(created.Criteria.Type)),
	)
	return created, nil
}
