package query

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// UserStatsDTO is the public view of a user's aggregate.
type UserStatsDTO struct {
	UserID      int64 `json:"user_id"`
	TotalXP     int64 `json:"total_xp"`
	TotalPoints int64 `json:"total_points"`
	Level       int   `json:"level"`

	// CurrentLevelXP and NextLevelXP bound the current level.
	CurrentLevelXP int64 `json:"current_level_xp"`
	NextLevelXP    int64 `json:"next_level_xp"`

	// LevelProgress is the percentage (0-100) toward the next level.
	LevelProgress int `json:"level_progress"`

	CurrentStreak       int        `json:"current_streak"`
	LongestStreak       int        `json:"longest_streak"`
	TotalBadges         int        `json:"total_badges"`
	CompletedChallenges int        `json:"completed_challenges"`
	LastActivityDate    *time.Time `json:"last_activity_date,omitempty"`

	// GlobalRank is nil until the user appears in a ranking pass.
	GlobalRank *int `json:"global_rank,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// GetUserStatsHandler returns a user's stats. Unknown users get the
// zero-value aggregate; reading never creates rows.
type GetUserStatsHandler struct {
	stats       stats.Repository
	leaderboard leaderboard.Repository
	curve       ledger.LevelCurve
	clock       timeutil.Clock
}

// NewGetUserStatsHandler creates a new GetUserStatsHandler.
func NewGetUserStatsHandler(statsRepo stats.Repository, lbRepo leaderboard.Repository, curve ledger.LevelCurve, clock timeutil.Clock) *GetUserStatsHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &GetUserStatsHandler{
		stats:       statsRepo,
		leaderboard: lbRepo,
		curve:       curve,
		clock:       clock,
	}
}

// Handle executes the query.
func (h *GetUserStatsHandler) Handle(ctx context.Context, userID int64) (*UserStatsDTO, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	st, err := h.stats.Get(ctx, userID)
	switch {
	case shared.IsNotFound(err):
		st = stats.New(userID, h.clock())
	case err != nil:
		return nil, readErr("stats", "Get", err)
	}

	dto := h.toDTO(st)

	entry, err := h.leaderboard.GetUserEntry(ctx, leaderboard.Global(), userID)
	switch {
	case err == nil:
		rank := int(entry.Rank)
		dto.GlobalRank = &rank
	case !shared.IsNotFound(err):
		return nil, readErr("leaderboard", "GetUserEntry", err)
	}

	return dto, nil
}

func (h *GetUserStatsHandler) toDTO(st *stats.UserStat) *UserStatsDTO {
	level := h.curve.LevelFor(st.TotalXP)
	current := h.curve.XPForLevel(level)
	next := h.curve.XPForLevel(level + 1)

	progress := 100
	if next > current {
		gained := st.TotalXP - current
		if gained < 0 {
			gained = 0
		}
		progress = int(gained * 100 / (next - current))
	}

	return &UserStatsDTO{
		UserID:              st.UserID,
		TotalXP:             st.TotalXP,
		TotalPoints:         st.TotalPoints,
		Level:               st.GlobalLevel,
		CurrentLevelXP:      current,
		NextLevelXP:         next,
		LevelProgress:       progress,
		CurrentStreak:       st.CurrentStreak,
		LongestStreak:       st.LongestStreak,
		TotalBadges:         st.TotalBadges,
		CompletedChallenges: st.CompletedChallenges,
		LastActivityDate:    st.LastActivityDate,
		UpdatedAt:           st.StatsUpdatedAt,
	}
}
