package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Appends a ledger entry and folds it into the user's stats in one
// transaction. A repeat of (user, source, reason) without AllowMultiple is a
// silent no-op, which makes at-least-once event delivery safe.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data for one award.
type AwardXPCommand struct {
	UserID  int64
	Points  int64
	Reason  ledger.Reason
	Source  ledger.Source
	Options ledger.AwardOptions
}

func (c AwardXPCommand) toAward() ledger.Award {
	return ledger.Award{
		UserID:  c.UserID,
		Points:  c.Points,
		Reason:  c.Reason,
		Source:  c.Source,
		Options: c.Options,
	}
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	return c.toAward().Validate()
}

// AwardXPResult contains the outcome of an award.
type AwardXPResult struct {
	// Entry is the written entry; nil when the award was suppressed.
	Entry *ledger.PointEntry

	// Created is false when duplicate suppression turned the call into a no-op.
	Created bool

	// Stats is the user's row after the award; nil when suppressed.
	Stats *stats.UserStat

	// Level describes the level before and after the award.
	Level stats.XPChange
}

// Suppressed reports whether an identical award already existed.
func (r *AwardXPResult) Suppressed() bool {
	return !r.Created
}

// PenalizeCommand subtracts points from a user.
type PenalizeCommand struct {
	UserID int64

	// Points is the magnitude to subtract; must be positive.
	Points int64

	Source      ledger.Source
	Description string

	// AllowMultiple permits more than one penalty for the same source.
	AllowMultiple bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPHandler handles AwardXPCommand and PenalizeCommand.
type AwardXPHandler struct {
	env    Env
	stats  *StatAggregator
	logger *zap.Logger
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(env Env, aggregator *StatAggregator) *AwardXPHandler {
	env = env.withDefaults()
	return &AwardXPHandler{
		env:    env,
		stats:  aggregator,
		logger: env.Logger.With(logger.Component("xp_ledger")),
	}
}

// Handle executes the award in its own transaction.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *AwardXPResult
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		var err error
		result, err = h.award(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("award xp: %w", err)
	}
	return result, nil
}

// Penalize writes a negative entry with reason=penalty.
func (h *AwardXPHandler) Penalize(ctx context.Context, cmd PenalizeCommand) (*AwardXPResult, error) {
	if cmd.Points <= 0 {
		return nil, shared.ErrInvalidPoints
	}
	return h.Handle(ctx, AwardXPCommand{
		UserID: cmd.UserID,
		Points: -cmd.Points,
		Reason: ledger.ReasonPenalty,
		Source: cmd.Source,
		Options: ledger.AwardOptions{
			AllowMultiple: cmd.AllowMultiple,
			Description:   cmd.Description,
		},
	})
}

// award runs inside the caller's transaction.
func (h *AwardXPHandler) award(ctx context.Context, tx *txScope, cmd AwardXPCommand) (*AwardXPResult, error) {
	entry, err := ledger.NewEntry(cmd.toAward(), tx.now)
	if err != nil {
		return nil, err
	}

	if entry.DedupKey != "" {
		exists, err := tx.repos.Ledger.Exists(ctx, entry.UserID, entry.DedupKey)
		if err != nil {
			return nil, storageErr("ledger", "Exists", err)
		}
		if exists {
			h.logSuppressed(entry)
			return &AwardXPResult{}, nil
		}
	}

	inserted, err := tx.repos.Ledger.Append(ctx, entry)
	if err != nil {
		return nil, storageErr("ledger", "Append", err)
	}
	if !inserted {
		// lost the race to a concurrent writer holding the same key
		h.logSuppressed(entry)
		return &AwardXPResult{}, nil
	}

	change, st, err := h.stats.applyPoints(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	tx.emit(shared.NewXPAwardedEvent(entry.UserID, entry.Points, string(entry.Reason), entry.Source.Key(), st.TotalXP))
	if change.LeveledUp() {
		tx.emit(shared.NewLevelUpEvent(entry.UserID, change.OldLevel, change.NewLevel))
	}

	h.logger.Debug("xp awarded",
		logger.UserID(entry.UserID),
		logger.XPAmount(entry.Points),
		zap.String("reason", string(entry.Reason)),
		zap.String("source", entry.Source.Key()),
		zap.Int64("total_xp", st.TotalXP),
	)

	return &AwardXPResult{Entry: entry, Created: true, Stats: st, Level: change}, nil
}

func (h *AwardXPHandler) logSuppressed(entry *ledger.PointEntry) {
	h.logger.Debug("duplicate award suppressed",
		logger.UserID(entry.UserID),
		zap.String("dedup_key", entry.DedupKey),
	)
}
