package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE LEADERBOARD COMMAND
// Rebuilds a scope's ranking from the source of truth in one transaction:
// every entry upserted with its fresh rank, users no longer present pruned.
// The cache is refreshed after commit and never fails the run.
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeResult reports one scope's rebuild.
type RecomputeResult struct {
	Scope    leaderboard.Scope
	Entries  int
	Pruned   int64
	Duration time.Duration
}

// RecomputeLeaderboardHandler handles ranking rebuilds.
type RecomputeLeaderboardHandler struct {
	env    Env
	cache  leaderboard.Cache
	logger *zap.Logger
}

// NewRecomputeLeaderboardHandler creates a new RecomputeLeaderboardHandler.
// cache may be nil.
func NewRecomputeLeaderboardHandler(env Env, cache leaderboard.Cache) *RecomputeLeaderboardHandler {
	env = env.withDefaults()
	return &RecomputeLeaderboardHandler{
		env:    env,
		cache:  cache,
		logger: env.Logger.With(logger.Component("leaderboard_ranker")),
	}
}

// RecomputeGlobal ranks every user by total_xp.
func (h *RecomputeLeaderboardHandler) RecomputeGlobal(ctx context.Context) (*RecomputeResult, error) {
	return h.recompute(ctx, leaderboard.Global(), func(ctx context.Context, tx *txScope) ([]leaderboard.Standing, error) {
		rows, err := tx.repos.Stats.ListRanked(ctx)
		if err != nil {
			return nil, storageErr("stats", "ListRanked", err)
		}
		standings := make([]leaderboard.Standing, len(rows))
		for i, st := range rows {
			standings[i] = leaderboard.Standing{UserID: st.UserID, Points: st.TotalXP}
		}
		return standings, nil
	})
}

// RecomputeCourse ranks users by the net ledger points scoped to the course.
func (h *RecomputeLeaderboardHandler) RecomputeCourse(ctx context.Context, courseID int64) (*RecomputeResult, error) {
	if courseID <= 0 {
		return nil, shared.ErrInvalidCourseID
	}
	return h.recompute(ctx, leaderboard.Course(courseID), func(ctx context.Context, tx *txScope) ([]leaderboard.Standing, error) {
		totals, err := tx.repos.Ledger.TotalsByCourse(ctx, courseID)
		if err != nil {
			return nil, storageErr("ledger", "TotalsByCourse", err)
		}
		standings := make([]leaderboard.Standing, len(totals))
		for i, t := range totals {
			standings[i] = leaderboard.Standing{UserID: t.UserID, Points: t.Total}
		}
		return standings, nil
	})
}

// RecomputeAll rebuilds the global ranking and then every course ranking.
// A failing course is logged and skipped; the first error is returned at the end.
func (h *RecomputeLeaderboardHandler) RecomputeAll(ctx context.Context) ([]*RecomputeResult, error) {
	global, err := h.RecomputeGlobal(ctx)
	if err != nil {
		return nil, err
	}
	results := []*RecomputeResult{global}

	courseIDs, err := h.env.Store.Repositories().Ledger.CourseIDs(ctx)
	if err != nil {
		return results, fmt.Errorf("recompute leaderboard: %w", storageErr("ledger", "CourseIDs", err))
	}

	var firstErr error
	for _, id := range courseIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := h.RecomputeCourse(ctx, id)
		if err != nil {
			h.logger.Error("course ranking failed", logger.CourseID(id), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

type standingsFunc func(ctx context.Context, tx *txScope) ([]leaderboard.Standing, error)

func (h *RecomputeLeaderboardHandler) recompute(ctx context.Context, scope leaderboard.Scope, load standingsFunc) (*RecomputeResult, error) {
	started := time.Now()
	var ranking *leaderboard.Ranking
	var pruned int64

	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		standings, err := load(ctx, tx)
		if err != nil {
			return err
		}

		ranking, err = leaderboard.BuildRanking(scope, standings, tx.now)
		if err != nil {
			return shared.WrapError("leaderboard", "Recompute", shared.ErrInvalidInput, "invalid ranking input", err)
		}

		pruned, err = tx.repos.Leaderboard.Replace(ctx, ranking)
		if err != nil {
			return storageErr("leaderboard", "Replace", err)
		}

		tx.emit(shared.NewLeaderboardRebuiltEvent(scope.CourseID(), len(ranking.Entries), pruned))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute leaderboard %s: %w", scope, err)
	}

	h.refreshCache(ctx, ranking)

	result := &RecomputeResult{
		Scope:    scope,
		Entries:  len(ranking.Entries),
		Pruned:   pruned,
		Duration: time.Since(started),
	}

	h.logger.Info("leaderboard recomputed",
		zap.String("scope", scope.Key()),
		zap.Int("entries", result.Entries),
		zap.Int64("pruned", result.Pruned),
		logger.Latency(result.Duration),
	)
	return result, nil
}

func (h *RecomputeLeaderboardHandler) refreshCache(ctx context.Context, ranking *leaderboard.Ranking) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Store(ctx, ranking); err != nil {
		h.logger.Warn("failed to refresh leaderboard cache",
			zap.String("scope", ranking.Scope.Key()),
			logger.Err(err),
		)
	}
}
