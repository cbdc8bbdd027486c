package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PROGRESS COMMAND
// Advances every accepting assignment of the user whose challenge counts the
// given criteria. Reaching the target completes the assignment and pays the
// reward through the ledger inside the same transaction.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProgressCommand carries either an Increment added to progress or a
// Level that progress is raised to (streak_days reports the current streak).
type UpdateProgressCommand struct {
	UserID    int64
	Criteria  challenge.CriteriaType
	Increment int64
	Level     int64
}

// Validate validates the command.
func (c UpdateProgressCommand) Validate() error {
	if c.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if !c.Criteria.IsValid() {
		return shared.ErrInvalidCriteria
	}
	if (c.Increment > 0) == (c.Level > 0) || c.Increment < 0 || c.Level < 0 {
		return shared.ErrInvalidIncrement
	}
	return nil
}

func (c UpdateProgressCommand) apply(a *challenge.Assignment, target int64, now time.Time) (challenge.ProgressOutcome, error) {
	if c.Level > 0 {
		return a.RaiseProgress(c.Level, target, now)
	}
	return a.ApplyProgress(c.Increment, target, now)
}

// ProgressResult summarizes one progress update.
type ProgressResult struct {
	// Advanced counts assignments whose progress moved.
	Advanced int

	// Completed lists assignments that reached their target.
	Completed []*challenge.Assignment

	// Expired counts overdue assignments expired in place.
	Expired int

	// RewardXP is the challenge payout written to the ledger.
	RewardXP int64
}

func (r *ProgressResult) merge(o *ProgressResult) {
	r.Advanced += o.Advanced
	r.Completed = append(r.Completed, o.Completed...)
	r.Expired += o.Expired
	r.RewardXP += o.RewardXP
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProgressHandler drives challenge progress and payout.
type ProgressHandler struct {
	env    Env
	xp     *AwardXPHandler
	badges *AwardBadgeHandler
	stats  *StatAggregator
	logger *zap.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(env Env, xp *AwardXPHandler, badges *AwardBadgeHandler, aggregator *StatAggregator) *ProgressHandler {
	env = env.withDefaults()
	return &ProgressHandler{
		env:    env,
		xp:     xp,
		badges: badges,
		stats:  aggregator,
		logger: env.Logger.With(logger.Component("challenge_engine")),
	}
}

// Handle applies the increment in its own transaction.
func (h *ProgressHandler) Handle(ctx context.Context, cmd UpdateProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *ProgressResult
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		var err error
		result, err = h.advance(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	return result, nil
}

// advance runs inside the caller's transaction.
func (h *ProgressHandler) advance(ctx context.Context, tx *txScope, cmd UpdateProgressCommand) (*ProgressResult, error) {
	active, err := tx.repos.Challenges.ListAcceptingForUpdate(ctx, cmd.UserID, cmd.Criteria)
	if err != nil {
		return nil, storageErr("challenge", "ListAccepting", err)
	}

	result := &ProgressResult{}
	for _, item := range active {
		a, c := item.Assignment, item.Challenge

		if a.IsOverdue(tx.now) {
			// the sweep has not reached it yet
			if err := a.Expire(tx.now); err != nil {
				return nil, err
			}
			if err := tx.repos.Challenges.SaveAssignment(ctx, a); err != nil {
				return nil, storageErr("challenge", "SaveAssignment", err)
			}
			result.Expired++
			continue
		}

		out, err := cmd.apply(a, c.Criteria.Target, tx.now)
		if err != nil {
			return nil, err
		}
		if !out.Changed() {
			continue
		}
		if err := tx.repos.Challenges.SaveAssignment(ctx, a); err != nil {
			return nil, storageErr("challenge", "SaveAssignment", err)
		}
		result.Advanced++

		if !out.Completed {
			continue
		}

		reward, err := h.complete(ctx, tx, a, c)
		if err != nil {
			return nil, err
		}
		result.Completed = append(result.Completed, a)
		result.RewardXP += reward
	}

	return result, nil
}

// complete pays a freshly completed assignment. The payout is keyed by the
// assignment id so it can never be written twice.
func (h *ProgressHandler) complete(ctx context.Context, tx *txScope, a *challenge.Assignment, c *challenge.Challenge) (int64, error) {
	var paid int64
	if c.PointsReward > 0 {
		res, err := h.xp.award(ctx, tx, AwardXPCommand{
			UserID: a.UserID(),
			Points: c.PointsReward,
			Reason: ledger.ReasonCompletion,
			Source: ledger.ChallengeSource(a.ID()),
			Options: ledger.AwardOptions{
				Description: "challenge: " + c.Title,
			},
		})
		if err != nil {
			return 0, err
		}
		if res.Created {
			paid = res.Entry.Points
		}
	}

	if c.BadgeID != nil {
		if _, err := h.badges.awardByID(ctx, tx, a.UserID(), *c.BadgeID); err != nil {
			return 0, err
		}
	}

	if err := h.stats.incrementCompletedChallenges(ctx, tx, a.UserID()); err != nil {
		return 0, err
	}

	tx.emit(shared.NewChallengeCompletedEvent(a.UserID(), a.ID().String(), c.ID.String(), c.PointsReward))

	h.logger.Info("challenge completed",
		logger.UserID(a.UserID()),
		logger.AssignmentID(a.ID().String()),
		zap.String("challenge", c.Title),
		logger.XPAmount(paid),
	)
	return paid, nil
}
