// Package stats contains the per-user gamification aggregate: XP totals,
// level, streaks and counters derived from the ledger and awards.
package stats

import (
	"time"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/pkg/timeutil"
)

// UserStat is the denormalized running total for one user.
type UserStat struct {
	UserID              int64
	TotalXP             int64
	TotalPoints         int64
	GlobalLevel         int
	CurrentStreak       int
	LongestStreak       int
	TotalBadges         int
	CompletedChallenges int

	// LastActivityDate is a civil date (midnight UTC), nil before the first activity.
	LastActivityDate *time.Time

	StatsUpdatedAt time.Time
}

// New returns the zero-value row created on first access.
func New(userID int64, now time.Time) *UserStat {
	return &UserStat{
		UserID:         userID,
		GlobalLevel:    1,
		StatsUpdatedAt: now,
	}
}

// XPChange describes the effect of ApplyPoints.
type XPChange struct {
	OldLevel int
	NewLevel int
	TotalXP  int64
}

// LeveledUp reports whether the change moved the user to a higher level.
func (c XPChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// ApplyPoints folds a ledger entry into the totals and recomputes the level.
func (s *UserStat) ApplyPoints(e *ledger.PointEntry, curve ledger.LevelCurve, now time.Time) XPChange {
	old := s.GlobalLevel
	s.TotalXP += e.Points
	if !e.IsPenalty() {
		s.TotalPoints += e.Points
	}
	s.GlobalLevel = curve.LevelFor(s.TotalXP)
	s.StatsUpdatedAt = now
	return XPChange{OldLevel: old, NewLevel: s.GlobalLevel, TotalXP: s.TotalXP}
}

// StreakChange describes the effect of RecordActivity.
type StreakChange int

const (
	// StreakUnchanged means activity was already recorded today.
	StreakUnchanged StreakChange = iota
	// StreakExtended means the last activity was yesterday.
	StreakExtended
	// StreakStarted means there was no activity yesterday; the streak is now 1.
	StreakStarted
)

// Advanced reports whether the streak counter moved to a new day.
func (c StreakChange) Advanced() bool {
	return c != StreakUnchanged
}

// RecordActivity updates the streak for activity on the given civil date.
// Activity dated before the last recorded day does not move the streak.
func (s *UserStat) RecordActivity(day time.Time, now time.Time) StreakChange {
	change := StreakStarted
	if s.LastActivityDate != nil {
		switch diff := timeutil.DaysBetween(*s.LastActivityDate, day); {
		case diff <= 0:
			return StreakUnchanged
		case diff == 1:
			change = StreakExtended
		}
	}

	if change == StreakExtended {
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}

	d := day
	s.LastActivityDate = &d
	s.StatsUpdatedAt = now
	return change
}

// IncrementBadges records a newly earned badge.
func (s *UserStat) IncrementBadges(now time.Time) {
	s.TotalBadges++
	s.StatsUpdatedAt = now
}

// IncrementCompletedChallenges records a newly completed challenge.
func (s *UserStat) IncrementCompletedChallenges(now time.Time) {
	s.CompletedChallenges++
	s.StatsUpdatedAt = now
}

// Reconcile overwrites the counters with values recomputed from source rows.
func (s *UserStat) Reconcile(totals ledger.Totals, badges, completed int, curve ledger.LevelCurve, now time.Time) {
	s.TotalXP = totals.Net
	s.TotalPoints = totals.Gross
	s.TotalBadges = badges
	s.CompletedChallenges = completed
	s.GlobalLevel = curve.LevelFor(s.TotalXP)
	s.StatsUpdatedAt = now
}
