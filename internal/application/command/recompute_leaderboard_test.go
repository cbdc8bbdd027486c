package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	stored []*leaderboard.Ranking
	err    error
}

func (c *fakeCache) Store(_ context.Context, r *leaderboard.Ranking) error {
	if c.err != nil {
		return c.err
	}
	c.stored = append(c.stored, r)
	return nil
}

func (c *fakeCache) Page(context.Context, leaderboard.Scope, leaderboard.PageOptions) ([]leaderboard.Entry, int, bool, error) {
	return nil, 0, false, nil
}

func seedStats(t *testing.T, f *fixture, xp map[int64]int64) {
	t.Helper()
	for user, total := range xp {
		st := stats.New(user, baseTime)
		st.TotalXP = total
		require.NoError(t, f.store.Repositories().Stats.Save(f.ctx, st))
	}
}

func ranks(t *testing.T, f *fixture, scope leaderboard.Scope) map[int64]leaderboard.Rank {
	t.Helper()
	entries, err := f.store.Repositories().Leaderboard.Page(f.ctx, scope, leaderboard.NewPageOptions(1, leaderboard.MaxPageSize))
	require.NoError(t, err)
	out := make(map[int64]leaderboard.Rank, len(entries))
	for _, e := range entries {
		out[e.UserID] = e.Rank
	}
	return out
}

func TestRecomputeGlobal_DeterministicTieBreak(t *testing.T) {
	f := newFixture(t)
	seedStats(t, f, map[int64]int64{5: 100, 3: 100, 9: 250, 1: 10})

	res, err := f.h.Leaderboard.RecomputeGlobal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Entries)

	first := ranks(t, f, leaderboard.Global())
	assert.Equal(t, map[int64]leaderboard.Rank{9: 1, 3: 2, 5: 3, 1: 4}, first)

	_, err = f.h.Leaderboard.RecomputeGlobal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, first, ranks(t, f, leaderboard.Global()))
	assert.Equal(t, 2, f.events.count(shared.EventLeaderboardRebuilt))
}

func TestRecomputeGlobal_PrunesStaleEntries(t *testing.T) {
	f := newFixture(t)
	seedStats(t, f, map[int64]int64{1: 50, 2: 40})

	stale, err := leaderboard.BuildRanking(leaderboard.Global(), []leaderboard.Standing{{UserID: 99, Points: 1000}}, baseTime)
	require.NoError(t, err)
	_, err = f.store.Repositories().Leaderboard.Replace(f.ctx, stale)
	require.NoError(t, err)

	res, err := f.h.Leaderboard.RecomputeGlobal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Pruned)

	_, err = f.store.Repositories().Leaderboard.GetUserEntry(f.ctx, leaderboard.Global(), 99)
	assert.True(t, shared.IsNotFound(err))
}

func TestRecomputeAll_CourseScopes(t *testing.T) {
	cache := &fakeCache{}
	f := newFixtureWith(t, command.Options{LeaderboardCache: cache})

	lesson := func(user, lessonID, course int64) {
		ev := shared.NewLessonCompletedEvent(user, lessonID, 1)
		ev.CourseID = &course
		f.record(ev)
	}
	lesson(1, 10, 5)
	lesson(2, 11, 5)
	lesson(2, 12, 5)
	lesson(3, 13, 6)
	f.record(shared.NewLessonCompletedEvent(4, 14, 1))

	results, err := f.h.Leaderboard.RecomputeAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Scope.IsGlobal())

	assert.Equal(t, map[int64]leaderboard.Rank{2: 1, 1: 2}, ranks(t, f, leaderboard.Course(5)))
	assert.Equal(t, map[int64]leaderboard.Rank{3: 1}, ranks(t, f, leaderboard.Course(6)))
	assert.Len(t, ranks(t, f, leaderboard.Global()), 4)
	assert.Len(t, cache.stored, 3)
}

func TestRecompute_CacheFailureDoesNotFailRun(t *testing.T) {
	f := newFixtureWith(t, command.Options{LeaderboardCache: &fakeCache{err: errors.New("redis down")}})
	seedStats(t, f, map[int64]int64{1: 10})

	res, err := f.h.Leaderboard.RecomputeGlobal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)

	_, err = f.h.Leaderboard.RecomputeCourse(f.ctx, 0)
	assert.True(t, shared.IsValidation(err))
}
