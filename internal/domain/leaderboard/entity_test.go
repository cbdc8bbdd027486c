package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestBuildRanking_TieBreakByUserID(t *testing.T) {
	standings := []Standing{
		{UserID: 9, Points: 100},
		{UserID: 3, Points: 250},
		{UserID: 5, Points: 100},
		{UserID: 1, Points: 100},
		{UserID: 4, Points: 0},
	}

	r, err := BuildRanking(Global(), standings, now)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 1, 5, 9, 4}, r.UserIDs())
	for i, e := range r.Entries {
		assert.Equal(t, Rank(i+1), e.Rank)
		assert.Nil(t, e.CourseID)
	}
}

func TestBuildRanking_Deterministic(t *testing.T) {
	a := []Standing{{1, 10}, {2, 10}, {3, 30}, {4, 20}}
	b := []Standing{{4, 20}, {2, 10}, {3, 30}, {1, 10}}

	ra, err := BuildRanking(Global(), a, now)
	require.NoError(t, err)
	rb, err := BuildRanking(Global(), b, now)
	require.NoError(t, err)

	assert.Equal(t, ra.Entries, rb.Entries)
}

func TestBuildRanking_RejectsDuplicates(t *testing.T) {
	_, err := BuildRanking(Global(), []Standing{{1, 10}, {2, 5}, {1, 3}}, now)
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestBuildRanking_CourseScope(t *testing.T) {
	r, err := BuildRanking(Course(12), []Standing{{1, 10}}, now)
	require.NoError(t, err)

	require.NotNil(t, r.Entries[0].CourseID)
	assert.Equal(t, int64(12), *r.Entries[0].CourseID)
	assert.Equal(t, "course:12", r.Scope.Key())
	assert.False(t, r.Scope.IsGlobal())
}

func TestRanking_Page(t *testing.T) {
	r, err := BuildRanking(Global(), []Standing{{1, 5}, {2, 4}, {3, 3}, {4, 2}, {5, 1}}, now)
	require.NoError(t, err)

	assert.Len(t, r.Page(1, 2), 2)
	assert.Equal(t, int64(5), r.Page(3, 2)[0].UserID)
	assert.Nil(t, r.Page(4, 2))
	assert.Nil(t, r.Page(0, 2))
}

func TestNewPageOptions(t *testing.T) {
	o := NewPageOptions(0, 1000)
	assert.Equal(t, 1, o.Page)
	assert.Equal(t, MaxPageSize, o.PageSize)

	o = NewPageOptions(3, 0)
	assert.Equal(t, DefaultPageSize, o.PageSize)
	assert.Equal(t, 2*DefaultPageSize, o.Offset())
}
