package ledger

import (
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINT ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// PointEntry is one immutable ledger row.
type PointEntry struct {
	ID          uuid.UUID
	UserID      int64
	Source      Source
	Points      int64
	Reason      Reason
	Description string

	// CourseID scopes the entry to a course for per-course rankings.
	CourseID *int64

	// DedupKey is empty for entries written with AllowMultiple.
	DedupKey string

	CreatedAt time.Time
}

// AwardOptions controls duplicate suppression and audit data for an award.
type AwardOptions struct {
	// AllowMultiple appends a new entry even if one already exists for the same
	// (user, source, reason).
	AllowMultiple bool

	// Description is a free-text audit note.
	Description string

	// CourseID optionally scopes the entry to a course.
	CourseID *int64
}

// Award is a validated request to write a ledger entry.
type Award struct {
	UserID  int64
	Points  int64
	Reason  Reason
	Source  Source
	Options AwardOptions
}

// Validate checks the award for sign and reference consistency.
// Awards must carry positive points; penalties must carry negative points.
func (a Award) Validate() error {
	if a.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if !a.Reason.IsValid() {
		return shared.ErrInvalidReason
	}
	if a.Source.IsZero() || !a.Source.Type().IsValid() {
		return shared.ErrInvalidSource
	}
	if a.Reason == ReasonPenalty {
		if a.Points >= 0 {
			return shared.ErrInvalidPoints
		}
	} else if a.Points <= 0 {
		return shared.ErrInvalidPoints
	}
	if a.Options.CourseID != nil && *a.Options.CourseID <= 0 {
		return shared.ErrInvalidCourseID
	}
	return nil
}

// DedupKey returns the duplicate-suppression key, or "" when AllowMultiple is set.
func (a Award) DedupKey() string {
	if a.Options.AllowMultiple {
		return ""
	}
	return DedupKey(a.Source, a.Reason)
}

// NewEntry builds the ledger row for a validated award.
func NewEntry(a Award, now time.Time) (*PointEntry, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &PointEntry{
		ID:          uuid.New(),
		UserID:      a.UserID,
		Source:      a.Source,
		Points:      a.Points,
		Reason:      a.Reason,
		Description: a.Options.Description,
		CourseID:    a.Options.CourseID,
		DedupKey:    a.DedupKey(),
		CreatedAt:   now,
	}, nil
}

// IsPenalty reports whether the entry subtracts points.
func (e *PointEntry) IsPenalty() bool {
	return e.Reason == ReasonPenalty
}

// Totals summarizes a user's ledger.
type Totals struct {
	// Net is the sum of all entries, penalties included.
	Net int64

	// Gross is the sum of non-penalty entries.
	Gross int64
}

// Add folds an entry into the totals.
func (t Totals) Add(e *PointEntry) Totals {
	t.Net += e.Points
	if !e.IsPenalty() {
		t.Gross += e.Points
	}
	return t
}

// UserTotal is one user's point sum within a scope.
type UserTotal struct {
	UserID int64
	Total  int64
}
