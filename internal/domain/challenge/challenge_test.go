package challenge

import (
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cal  = timeutil.NewCalendar(time.UTC)
	now  = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) // Wednesday
	day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newDaily(t *testing.T, target int64) *Challenge {
	t.Helper()
	c, err := NewChallenge("Three lessons", "", TypeDaily,
		Criteria{Type: CriteriaLessonsCompleted, Target: target}, 50, nil, day0, nil, day0)
	require.NoError(t, err)
	return c
}

func TestNewChallenge_Validation(t *testing.T) {
	end := day0.Add(24 * time.Hour)

	_, err := NewChallenge("", "", TypeDaily, Criteria{Type: CriteriaXPEarned, Target: 1}, 10, nil, day0, nil, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewChallenge("x", "", TypeDaily, Criteria{Type: "likes", Target: 1}, 10, nil, day0, nil, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewChallenge("x", "", TypeDaily, Criteria{Type: CriteriaXPEarned, Target: 0}, 10, nil, day0, nil, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewChallenge("x", "", TypeSpecial, Criteria{Type: CriteriaXPEarned, Target: 1}, 10, nil, day0, nil, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput, "special challenges need an end")

	before := day0.Add(-time.Hour)
	_, err = NewChallenge("x", "", TypeWeekly, Criteria{Type: CriteriaXPEarned, Target: 1}, 10, nil, day0, &before, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	c, err := NewChallenge("x", "", TypeSpecial, Criteria{Type: CriteriaXPEarned, Target: 1}, 10, nil, day0, &end, now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.ID)
}

func TestChallenge_IsActive(t *testing.T) {
	end := day0.Add(48 * time.Hour)
	c := &Challenge{StartAt: day0, EndAt: &end}

	assert.False(t, c.IsActive(day0.Add(-time.Second)))
	assert.True(t, c.IsActive(day0))
	assert.True(t, c.IsActive(end.Add(-time.Second)))
	assert.False(t, c.IsActive(end))

	open := &Challenge{StartAt: day0}
	assert.True(t, open.IsActive(now))
}

func TestChallenge_Period(t *testing.T) {
	daily := &Challenge{Type: TypeDaily, StartAt: day0}
	assigned, expires := daily.Period(now, cal)
	assert.Equal(t, timeutil.Date(2026, 10, 14), assigned)
	assert.Equal(t, cal.EndOfDay(now), expires)

	weekly := &Challenge{Type: TypeWeekly, StartAt: day0}
	assigned, expires = weekly.Period(now, cal)
	assert.Equal(t, timeutil.Date(2026, 10, 12), assigned)
	assert.Equal(t, cal.EndOfWeek(now), expires)

	// A weekly challenge ending mid-week expires with the challenge.
	end := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	weekly.EndAt = &end
	_, expires = weekly.Period(now, cal)
	assert.Equal(t, end, expires)

	special := &Challenge{Type: TypeSpecial, StartAt: day0, EndAt: &end}
	assigned, expires = special.Period(now, cal)
	assert.Equal(t, timeutil.Date(2026, 1, 1), assigned)
	assert.Equal(t, end, expires)
}

func TestStatus_Transitions(t *testing.T) {
	all := []Status{StatusPending, StatusInProgress, StatusCompleted, StatusClaimed, StatusExpired}
	legal := map[Status][]Status{
		StatusPending:    {StatusInProgress, StatusCompleted, StatusExpired},
		StatusInProgress: {StatusCompleted, StatusExpired},
		StatusCompleted:  {StatusClaimed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, l := range legal[from] {
				if l == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	for _, s := range all {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("done")
	assert.Error(t, err)
}

func TestAssignment_ProgressToCompletion(t *testing.T) {
	c := newDaily(t, 3)
	_, expires := c.Period(now, cal)
	a := NewAssignment(7, c.ID, cal.CivilDate(now), expires, now)

	out, err := a.ApplyProgress(1, c.Criteria.Target, now)
	require.NoError(t, err)
	assert.True(t, out.Started)
	assert.False(t, out.Completed)
	assert.Equal(t, StatusInProgress, a.Status())

	_, err = a.ApplyProgress(1, c.Criteria.Target, now)
	require.NoError(t, err)

	out, err = a.ApplyProgress(1, c.Criteria.Target, now)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, int64(3), a.Progress())
	assert.Equal(t, StatusCompleted, a.Status())
	require.NotNil(t, a.CompletedAt())

	// Further progress is rejected and does not change anything.
	_, err = a.ApplyProgress(5, c.Criteria.Target, now)
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	assert.Equal(t, int64(3), a.Progress())
}

func TestAssignment_SingleStepCompletionFromPending(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now)

	out, err := a.ApplyProgress(500, 100, now)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.False(t, out.Started)
	assert.Equal(t, StatusCompleted, a.Status())
}

func TestAssignment_RejectsInvalidIncrement(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now)

	_, err := a.ApplyProgress(0, 3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = a.ApplyProgress(-1, 3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Zero(t, a.Progress())
}

func TestAssignment_RaiseProgressIsMonotonic(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfWeek(now), now)

	out, err := a.RaiseProgress(2, 3, now)
	require.NoError(t, err)
	assert.True(t, out.Started)
	assert.True(t, out.Changed())
	assert.Equal(t, int64(2), a.Progress())

	// a reset running value never lowers progress
	out, err = a.RaiseProgress(1, 3, now)
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.Equal(t, int64(2), a.Progress())
	assert.Equal(t, StatusInProgress, a.Status())

	out, err = a.RaiseProgress(3, 3, now)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, StatusCompleted, a.Status())

	_, err = a.RaiseProgress(4, 3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	_, err = NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now).RaiseProgress(0, 3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAssignment_Claim(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now)

	assert.ErrorIs(t, a.Claim(now), shared.ErrInvalidStateTransition, "pending is not claimable")

	_, err := a.ApplyProgress(1, 1, now)
	require.NoError(t, err)

	require.NoError(t, a.Claim(now))
	assert.Equal(t, StatusClaimed, a.Status())
	assert.True(t, a.RewardClaimed())

	assert.ErrorIs(t, a.Claim(now), shared.ErrInvalidStateTransition, "claim is one-shot")
}

func TestAssignment_ExpireIsTerminal(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now)
	_, err := a.ApplyProgress(1, 3, now)
	require.NoError(t, err)

	later := cal.EndOfDay(now).Add(time.Minute)
	require.True(t, a.IsOverdue(later))
	require.NoError(t, a.Expire(later))
	assert.Equal(t, StatusExpired, a.Status())

	assert.ErrorIs(t, a.Expire(later), shared.ErrInvalidStateTransition)

	_, err = a.ApplyProgress(10, 3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	assert.Equal(t, int64(1), a.Progress())
	assert.Equal(t, StatusExpired, a.Status())

	assert.ErrorIs(t, a.Claim(later), shared.ErrInvalidStateTransition)
}

func TestAssignment_OverdueRejectsProgress(t *testing.T) {
	a := NewAssignment(7, uuid.New(), cal.CivilDate(now), cal.EndOfDay(now), now)

	_, err := a.ApplyProgress(1, 3, cal.EndOfDay(now).Add(time.Second))
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	assert.Equal(t, StatusPending, a.Status())
}

func TestRehydrate(t *testing.T) {
	completedAt := now
	good := Record{ID: uuid.New(), UserID: 7, Status: StatusCompleted, CurrentProgress: 3, CompletedAt: &completedAt}
	a, err := Rehydrate(good)
	require.NoError(t, err)
	assert.Equal(t, good, a.Record())

	bad := []Record{
		{Status: StatusPending, CurrentProgress: 2},
		{Status: StatusCompleted},
		{Status: StatusClaimed, CompletedAt: &completedAt},
		{Status: StatusExpired, RewardClaimed: true},
		{Status: 0},
	}
	for _, r := range bad {
		_, err := Rehydrate(r)
		assert.ErrorIs(t, err, shared.ErrInvalidStateTransition, "%+v", r)
	}
}
