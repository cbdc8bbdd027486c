package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/application/query"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type env struct {
	ctx   context.Context
	store *memory.Store
	h     *command.Handlers
}

func setup(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	h := command.NewHandlers(command.Env{
		Store:    store,
		Clock:    timeutil.FixedClock(now),
		Calendar: timeutil.NewCalendar(time.UTC),
	}, command.Options{Milestones: command.DefaultMilestones()})
	return &env{ctx: context.Background(), store: store, h: h}
}

func (e *env) award(t *testing.T, userID, lessonID, points int64) {
	t.Helper()
	_, err := e.h.AwardXP.Handle(e.ctx, command.AwardXPCommand{
		UserID: userID,
		Points: points,
		Reason: ledger.ReasonCompletion,
		Source: ledger.LessonSource(lessonID),
	})
	require.NoError(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetUserStats_LevelProgressAndRank(t *testing.T) {
	e := setup(t)
	e.award(t, 7, 1, 120)
	e.award(t, 8, 2, 300)
	_, err := e.h.Leaderboard.RecomputeGlobal(e.ctx)
	require.NoError(t, err)

	h := query.NewGetUserStatsHandler(e.store.Repositories().Stats, e.store.Repositories().Leaderboard, ledger.DefaultLevelCurve(), nil)
	dto, err := h.Handle(e.ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(120), dto.TotalXP)
	assert.Equal(t, 2, dto.Level)
	assert.Equal(t, int64(100), dto.CurrentLevelXP)
	assert.Equal(t, int64(250), dto.NextLevelXP)
	assert.Equal(t, 13, dto.LevelProgress)
	require.NotNil(t, dto.GlobalRank)
	assert.Equal(t, 2, *dto.GlobalRank)
}

func TestGetUserStats_UnknownUserGetsDefaults(t *testing.T) {
	e := setup(t)
	h := query.NewGetUserStatsHandler(e.store.Repositories().Stats, e.store.Repositories().Leaderboard, ledger.DefaultLevelCurve(), timeutil.FixedClock(now))

	dto, err := h.Handle(e.ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, dto.Level)
	assert.Zero(t, dto.TotalXP)
	assert.Nil(t, dto.GlobalRank)

	_, err = e.store.Repositories().Stats.Get(e.ctx, 42)
	assert.True(t, shared.IsNotFound(err), "reads must not create rows")

	_, err = h.Handle(e.ctx, 0)
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

type stubCache struct {
	entries []leaderboard.Entry
	total   int
	hit     bool
	err     error
}

func (c *stubCache) Store(context.Context, *leaderboard.Ranking) error { return nil }

func (c *stubCache) Page(context.Context, leaderboard.Scope, leaderboard.PageOptions) ([]leaderboard.Entry, int, bool, error) {
	return c.entries, c.total, c.hit, c.err
}

func TestGetLeaderboard_PagesFromRepository(t *testing.T) {
	e := setup(t)
	for i := int64(1); i <= 5; i++ {
		e.award(t, i, i, i*10)
	}
	_, err := e.h.Leaderboard.RecomputeGlobal(e.ctx)
	require.NoError(t, err)

	h := query.NewGetLeaderboardHandler(e.store.Repositories().Leaderboard, nil, nil)
	res, err := h.Handle(e.ctx, query.GetLeaderboardQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalCount)
	assert.True(t, res.HasMore)
	assert.False(t, res.Cached)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, int64(5), res.Entries[0].UserID)
	assert.Equal(t, 1, res.Entries[0].Rank)

	last, err := h.Handle(e.ctx, query.GetLeaderboardQuery{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.False(t, last.HasMore)
	assert.Equal(t, 5, last.Entries[0].Rank)
}

func TestGetLeaderboard_CacheHitAndFallback(t *testing.T) {
	e := setup(t)
	e.award(t, 1, 1, 10)
	_, err := e.h.Leaderboard.RecomputeGlobal(e.ctx)
	require.NoError(t, err)
	repo := e.store.Repositories().Leaderboard

	hit := &stubCache{hit: true, total: 1, entries: []leaderboard.Entry{{UserID: 99, TotalPoints: 5, Rank: 1}}}
	res, err := query.NewGetLeaderboardHandler(repo, hit, nil).Handle(e.ctx, query.GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int64(99), res.Entries[0].UserID)

	broken := &stubCache{err: errors.New("connection refused")}
	res, err = query.NewGetLeaderboardHandler(repo, broken, nil).Handle(e.ctx, query.GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int64(1), res.Entries[0].UserID)
}

func TestGetLeaderboard_Validation(t *testing.T) {
	e := setup(t)
	h := query.NewGetLeaderboardHandler(e.store.Repositories().Leaderboard, nil, nil)

	bad := int64(0)
	_, err := h.Handle(e.ctx, query.GetLeaderboardQuery{CourseID: &bad})
	assert.ErrorIs(t, err, shared.ErrInvalidCourseID)

	_, err = h.Handle(e.ctx, query.GetLeaderboardQuery{Page: -1})
	assert.True(t, shared.IsValidation(err))

	course := int64(3)
	res, err := h.Handle(e.ctx, query.GetLeaderboardQuery{CourseID: &course})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, leaderboard.Course(3).Key(), res.Scope)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES, ASSIGNMENTS, HISTORY
// ══════════════════════════════════════════════════════════════════════════════

func TestListUserBadges(t *testing.T) {
	e := setup(t)
	_, err := e.h.AwardBadge.Handle(e.ctx, command.AwardBadgeCommand{UserID: 7, Code: "helper", Name: "Helper"})
	require.NoError(t, err)

	badges, err := query.NewListUserBadgesHandler(e.store.Repositories().Badges).Handle(e.ctx, 7)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "helper", badges[0].Code)
	assert.Equal(t, "achievement", badges[0].Type)
}

func TestListAssignments_JoinsChallengeAndFilters(t *testing.T) {
	e := setup(t)
	c, err := e.h.CreateChallenge.Handle(e.ctx, command.CreateChallengeCommand{
		Title:        "Three lessons",
		Type:         challenge.TypeDaily,
		Criteria:     challenge.Criteria{Type: challenge.CriteriaLessonsCompleted, Target: 3},
		PointsReward: 25,
	})
	require.NoError(t, err)
	_, err = e.h.LearningEvents.Handle(e.ctx, shared.NewLessonCompletedEvent(7, 1, 1))
	require.NoError(t, err)

	res, err := e.h.Assign.Handle(e.ctx, command.AssignChallengesCommand{Type: challenge.TypeDaily})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	h, err := query.NewListAssignmentsHandler(e.store.Repositories().Challenges, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		list, err := h.Handle(e.ctx, query.ListAssignmentsQuery{UserID: 7})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, c.ID, list[0].ChallengeID)
		assert.Equal(t, "Three lessons", list[0].Title)
		assert.Equal(t, int64(3), list[0].Target)
		assert.Equal(t, "pending", list[0].Status)
	}

	completed, err := h.Handle(e.ctx, query.ListAssignmentsQuery{UserID: 7, Status: "completed"})
	require.NoError(t, err)
	assert.Empty(t, completed)

	_, err = h.Handle(e.ctx, query.ListAssignmentsQuery{UserID: 7, Status: "bogus"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetXPHistory_NewestFirst(t *testing.T) {
	e := setup(t)
	e.award(t, 7, 1, 10)
	e.award(t, 7, 2, 20)
	e.award(t, 7, 3, 30)

	h := query.NewGetXPHistoryHandler(e.store.Repositories().Ledger)
	page, err := h.Handle(e.ctx, query.GetXPHistoryQuery{UserID: 7, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(30), page[0].Points)
	assert.Equal(t, "lesson", page[0].SourceType)
	assert.Equal(t, "3", page[0].SourceID)

	rest, err := h.Handle(e.ctx, query.GetXPHistoryQuery{UserID: 7, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(10), rest[0].Points)
}
