package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STAT AGGREGATOR
// Single write path for UserStat. Ledger awards, badge grants, challenge
// completions and streak updates all go through mutate, inside the caller's
// transaction, so total_xp always matches the ledger.
// ══════════════════════════════════════════════════════════════════════════════

// StatAggregator maintains the per-user running totals.
type StatAggregator struct {
	env    Env
	curve  ledger.LevelCurve
	logger *zap.Logger
}

// NewStatAggregator creates a StatAggregator using the given level curve.
func NewStatAggregator(env Env, curve ledger.LevelCurve) *StatAggregator {
	env = env.withDefaults()
	return &StatAggregator{
		env:    env,
		curve:  curve,
		logger: env.Logger.With(logger.Component("stat_aggregator")),
	}
}

// Curve returns the XP-to-level curve in use.
func (a *StatAggregator) Curve() ledger.LevelCurve {
	return a.curve
}

// GetOrCreateStats returns the user's stats, creating the zero-value row on first access.
func (a *StatAggregator) GetOrCreateStats(ctx context.Context, userID int64) (*stats.UserStat, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	st, err := a.env.Store.Repositories().Stats.Get(ctx, userID)
	if err == nil {
		return st, nil
	}
	if !shared.IsNotFound(err) {
		return nil, storageErr("stats", "GetOrCreateStats", err)
	}

	err = a.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		st, err = tx.repos.Stats.GetOrCreateForUpdate(ctx, userID, tx.now)
		return storageErr("stats", "GetOrCreateStats", err)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// mutate locks the user's row (creating it if needed), applies fn and saves.
func (a *StatAggregator) mutate(ctx context.Context, tx *txScope, userID int64, fn func(s *stats.UserStat)) (*stats.UserStat, error) {
	st, err := tx.repos.Stats.GetOrCreateForUpdate(ctx, userID, tx.now)
	if err != nil {
		return nil, storageErr("stats", "Lock", err)
	}

	fn(st)

	if err := tx.repos.Stats.Save(ctx, st); err != nil {
		return nil, storageErr("stats", "Save", err)
	}
	return st, nil
}

// applyPoints folds a freshly written ledger entry into the user's totals.
func (a *StatAggregator) applyPoints(ctx context.Context, tx *txScope, entry *ledger.PointEntry) (stats.XPChange, *stats.UserStat, error) {
	var change stats.XPChange
	st, err := a.mutate(ctx, tx, entry.UserID, func(s *stats.UserStat) {
		change = s.ApplyPoints(entry, a.curve, tx.now)
	})
	return change, st, err
}

// recordActivity updates the streak for activity happening at tx.now.
func (a *StatAggregator) recordActivity(ctx context.Context, tx *txScope, userID int64) (stats.StreakChange, *stats.UserStat, error) {
	var change stats.StreakChange
	day := a.env.Calendar.CivilDate(tx.now)
	st, err := a.mutate(ctx, tx, userID, func(s *stats.UserStat) {
		change = s.RecordActivity(day, tx.now)
	})
	return change, st, err
}

func (a *StatAggregator) incrementBadges(ctx context.Context, tx *txScope, userID int64) error {
	_, err := a.mutate(ctx, tx, userID, func(s *stats.UserStat) {
		s.IncrementBadges(tx.now)
	})
	return err
}

func (a *StatAggregator) incrementCompletedChallenges(ctx context.Context, tx *txScope, userID int64) error {
	_, err := a.mutate(ctx, tx, userID, func(s *stats.UserStat) {
		s.IncrementCompletedChallenges(tx.now)
	})
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileResult reports what a reconciliation changed.
type ReconcileResult struct {
	Before stats.UserStat
	After  stats.UserStat
}

// Changed reports whether any counter was corrected.
func (r *ReconcileResult) Changed() bool {
	b, a := r.Before, r.After
	return b.TotalXP != a.TotalXP ||
		b.TotalPoints != a.TotalPoints ||
		b.TotalBadges != a.TotalBadges ||
		b.CompletedChallenges != a.CompletedChallenges ||
		b.GlobalLevel != a.GlobalLevel
}

// Reconcile recomputes the user's counters from the ledger, badge grants and
// assignments. It is the administrative repair path; streaks are left untouched.
func (a *StatAggregator) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	started := time.Now()
	var result ReconcileResult

	err := a.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		totals, err := tx.repos.Ledger.TotalsByUser(ctx, userID)
		if err != nil {
			return storageErr("stats", "Reconcile", err)
		}
		badges, err := tx.repos.Badges.CountByUser(ctx, userID)
		if err != nil {
			return storageErr("stats", "Reconcile", err)
		}
		completed, err := tx.repos.Challenges.CountCompletedByUser(ctx, userID)
		if err != nil {
			return storageErr("stats", "Reconcile", err)
		}

		st, err := a.mutate(ctx, tx, userID, func(s *stats.UserStat) {
			result.Before = *s
			s.Reconcile(totals, badges, completed, a.curve, tx.now)
		})
		if err != nil {
			return err
		}
		result.After = *st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile stats: %w", err)
	}

	if result.Changed() {
		a.logger.Warn("stats reconciled with corrections",
			logger.UserID(userID),
			zap.Int64("total_xp_before", result.Before.TotalXP),
			zap.Int64("total_xp_after", result.After.TotalXP),
			logger.Latency(time.Since(started)),
		)
	}
	return &result, nil
}
