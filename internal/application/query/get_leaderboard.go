// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Returns one page of a global or per-course ranking. Pages are served from
// the cache when the scope is cached and from the database otherwise.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// CourseID selects a course ranking; nil means the global one.
	CourseID *int64

	// Page is 1-based; values below 1 are clamped.
	Page int

	// PageSize defaults to 20 and is capped at 100.
	PageSize int
}

// Validate checks the query.
func (q GetLeaderboardQuery) Validate() error {
	if q.CourseID != nil && *q.CourseID <= 0 {
		return shared.ErrInvalidCourseID
	}
	if q.Page < 0 || q.PageSize < 0 {
		return shared.ErrInvalidPage
	}
	return nil
}

func (q GetLeaderboardQuery) scope() leaderboard.Scope {
	if q.CourseID != nil {
		return leaderboard.Course(*q.CourseID)
	}
	return leaderboard.Global()
}

// LeaderboardEntryDTO is one ranked row.
type LeaderboardEntryDTO struct {
	Rank        int       `json:"rank"`
	UserID      int64     `json:"user_id"`
	TotalPoints int64     `json:"total_points"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetLeaderboardResult contains one page of a ranking.
type GetLeaderboardResult struct {
	Scope      string                `json:"scope"`
	Entries    []LeaderboardEntryDTO `json:"entries"`
	TotalCount int                   `json:"total_count"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	HasMore    bool                  `json:"has_more"`

	// Cached reports whether the page came from the cache.
	Cached bool `json:"cached"`
}

// GetLeaderboardHandler serves leaderboard pages.
type GetLeaderboardHandler struct {
	repo   leaderboard.Repository
	cache  leaderboard.Cache
	logger *zap.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler. cache may be nil.
func NewGetLeaderboardHandler(repo leaderboard.Repository, cache leaderboard.Cache, log *zap.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GetLeaderboardHandler{
		repo:   repo,
		cache:  cache,
		logger: log.With(logger.Component("leaderboard_query")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	scope := q.scope()
	opts := leaderboard.NewPageOptions(q.Page, q.PageSize)

	if entries, total, ok := h.fromCache(ctx, scope, opts); ok {
		return buildLeaderboardResult(scope, entries, total, opts, true), nil
	}

	entries, err := h.repo.Page(ctx, scope, opts)
	if err != nil {
		return nil, readErr("leaderboard", "Page", err)
	}
	total, err := h.repo.Count(ctx, scope)
	if err != nil {
		return nil, readErr("leaderboard", "Count", err)
	}

	return buildLeaderboardResult(scope, entries, total, opts, false), nil
}

// fromCache returns a cached page; any cache failure falls back to the database.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context, scope leaderboard.Scope, opts leaderboard.PageOptions) ([]leaderboard.Entry, int, bool) {
	if h.cache == nil {
		return nil, 0, false
	}

	entries, total, ok, err := h.cache.Page(ctx, scope, opts)
	if err != nil {
		h.logger.Warn("leaderboard cache read failed",
			zap.String("scope", scope.Key()),
			logger.Err(err),
		)
		return nil, 0, false
	}
	return entries, total, ok
}

func buildLeaderboardResult(scope leaderboard.Scope, entries []leaderboard.Entry, total int, opts leaderboard.PageOptions, cached bool) *GetLeaderboardResult {
	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LeaderboardEntryDTO{
			Rank:        int(e.Rank),
			UserID:      e.UserID,
			TotalPoints: e.TotalPoints,
			UpdatedAt:   e.UpdatedAt,
		}
	}

	return &GetLeaderboardResult{
		Scope:      scope.Key(),
		Entries:    dtos,
		TotalCount: total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		HasMore:    opts.Offset()+len(entries) < total,
		Cached:     cached,
	}
}
