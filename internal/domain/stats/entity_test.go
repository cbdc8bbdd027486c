package stats

import (
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func TestNew_ZeroDefaults(t *testing.T) {
	s := New(7, now)

	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, 1, s.GlobalLevel)
	assert.Zero(t, s.TotalXP)
	assert.Nil(t, s.LastActivityDate)
}

func TestRecordActivity_Streaks(t *testing.T) {
	day := timeutil.Date(2026, 4, 10)

	tests := []struct {
		name        string
		last        *time.Time
		current     int
		longest     int
		wantChange  StreakChange
		wantCurrent int
		wantLongest int
	}{
		{"first activity", nil, 0, 0, StreakStarted, 1, 1},
		{"yesterday extends", ptr(day.AddDate(0, 0, -1)), 4, 6, StreakExtended, 5, 6},
		{"yesterday beats longest", ptr(day.AddDate(0, 0, -1)), 6, 6, StreakExtended, 7, 7},
		{"today unchanged", ptr(day), 3, 5, StreakUnchanged, 3, 5},
		{"gap resets", ptr(day.AddDate(0, 0, -2)), 9, 9, StreakStarted, 1, 9},
		{"out of order ignored", ptr(day.AddDate(0, 0, 1)), 2, 2, StreakUnchanged, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(7, now)
			s.LastActivityDate = tt.last
			s.CurrentStreak = tt.current
			s.LongestStreak = tt.longest

			change := s.RecordActivity(day, now)

			assert.Equal(t, tt.wantChange, change)
			assert.Equal(t, tt.wantCurrent, s.CurrentStreak)
			assert.Equal(t, tt.wantLongest, s.LongestStreak)
			assert.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
		})
	}
}

func TestApplyPoints_LevelAndTotals(t *testing.T) {
	curve := ledger.DefaultLevelCurve()
	s := New(7, now)

	change := s.ApplyPoints(&ledger.PointEntry{Points: 120, Reason: ledger.ReasonCompletion}, curve, now)
	assert.True(t, change.LeveledUp())
	assert.Equal(t, 1, change.OldLevel)
	assert.Equal(t, 2, change.NewLevel)

	change = s.ApplyPoints(&ledger.PointEntry{Points: -50, Reason: ledger.ReasonPenalty}, curve, now)
	assert.False(t, change.LeveledUp())
	assert.Equal(t, int64(70), s.TotalXP)
	assert.Equal(t, int64(120), s.TotalPoints)
	assert.Equal(t, 1, s.GlobalLevel)
}

func TestReconcile(t *testing.T) {
	s := New(7, now)
	s.TotalXP = 999
	s.TotalBadges = 10

	s.Reconcile(ledger.Totals{Net: 260, Gross: 300}, 2, 1, ledger.DefaultLevelCurve(), now)

	require.Equal(t, int64(260), s.TotalXP)
	assert.Equal(t, int64(300), s.TotalPoints)
	assert.Equal(t, 2, s.TotalBadges)
	assert.Equal(t, 1, s.CompletedChallenges)
	assert.Equal(t, 3, s.GlobalLevel)
}

func ptr(t time.Time) *time.Time { return &t }
