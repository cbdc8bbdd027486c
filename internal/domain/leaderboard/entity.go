// Package leaderboard contains the ranked view of users by cumulative points.
// Rankings are rebuilt in full on each pass; the ordering is deterministic
// for identical inputs (points descending, user id ascending).
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// Scope selects the global leaderboard or one course's leaderboard.
type Scope struct {
	courseID *int64
}

// Global is the platform-wide scope (course_id = NULL).
func Global() Scope { return Scope{} }

// Course scopes the leaderboard to one course.
func Course(courseID int64) Scope {
	id := courseID
	return Scope{courseID: &id}
}

// IsGlobal reports whether the scope is the global leaderboard.
func (s Scope) IsGlobal() bool { return s.courseID == nil }

// CourseID returns the course id, nil for the global scope.
func (s Scope) CourseID() *int64 {
	if s.courseID == nil {
		return nil
	}
	id := *s.courseID
	return &id
}

// Key returns a stable name for caches and logs.
func (s Scope) Key() string {
	if s.courseID == nil {
		return "global"
	}
	return "course:" + strconv.FormatInt(*s.courseID, 10)
}

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based position.
type Rank int

// IsValid checks that the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// String returns "#n".
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Entry is one row of a leaderboard. Unique per (scope, user).
type Entry struct {
	CourseID    *int64
	UserID      int64
	TotalPoints int64
	Rank        Rank
	UpdatedAt   time.Time
}

// Standing is the input to a ranking pass.
type Standing struct {
	UserID int64
	Points int64
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrDuplicateUser is returned when a standing list names a user twice.
	ErrDuplicateUser = errors.New("user appears twice in ranking input")
)

// Ranking is a fully ordered leaderboard for one scope.
type Ranking struct {
	Scope     Scope
	Entries   []Entry
	UpdatedAt time.Time
}

// BuildRanking orders standings by points desc, user id asc and assigns
// rank = 1-based position. Ties never share a rank.
func BuildRanking(scope Scope, standings []Standing, now time.Time) (*Ranking, error) {
	seen := make(map[int64]struct{}, len(standings))
	for _, s := range standings {
		if _, dup := seen[s.UserID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateUser, s.UserID)
		}
		seen[s.UserID] = struct{}{}
	}

	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Points != sorted[j].Points {
			return sorted[i].Points > sorted[j].Points
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]Entry, len(sorted))
	for i, s := range sorted {
		entries[i] = Entry{
			CourseID:    scope.CourseID(),
			UserID:      s.UserID,
			TotalPoints: s.Points,
			Rank:        Rank(i + 1),
			UpdatedAt:   now,
		}
	}

	return &Ranking{Scope: scope, Entries: entries, UpdatedAt: now}, nil
}

// UserIDs returns the ranked users in rank order.
func (r *Ranking) UserIDs() []int64 {
	ids := make([]int64, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.UserID
	}
	return ids
}

// Page returns a 1-based page of entries.
func (r *Ranking) Page(page, pageSize int) []Entry {
	if page < 1 || pageSize <= 0 {
		return nil
	}

	from := (page - 1) * pageSize
	if from >= len(r.Entries) {
		return nil
	}
	to := from + pageSize
	if to > len(r.Entries) {
		to = len(r.Entries)
	}

	result := make([]Entry, to-from)
	copy(result, r.Entries[from:to])
	return result
}
