// Package challenge contains time-boxed challenge templates and the
// per-user assignment state machine.
package challenge

import (
	"strings"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/google/uuid"
)

// Type determines how often a challenge is assigned.
type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeSpecial Type = "special"
)

// IsValid checks if the challenge type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeSpecial:
		return true
	}
	return false
}

// CriteriaType is the category of learner action a challenge counts.
type CriteriaType string

const (
	CriteriaLessonsCompleted     CriteriaType = "lessons_completed"
	CriteriaAssignmentsSubmitted CriteriaType = "assignments_submitted"
	CriteriaQuizzesCompleted     CriteriaType = "quizzes_completed"
	CriteriaXPEarned             CriteriaType = "xp_earned"
	CriteriaCoursesCompleted     CriteriaType = "courses_completed"
	CriteriaStreakDays           CriteriaType = "streak_days"
)

// IsValid checks if the criteria type is one of the supported set.
func (c CriteriaType) IsValid() bool {
	switch c {
	case CriteriaLessonsCompleted, CriteriaAssignmentsSubmitted, CriteriaQuizzesCompleted,
		CriteriaXPEarned, CriteriaCoursesCompleted, CriteriaStreakDays:
		return true
	}
	return false
}

// Criteria is the completion condition: Type reaches Target.
type Criteria struct {
	Type   CriteriaType
	Target int64
}

// Validate checks the criteria.
func (c Criteria) Validate() error {
	if !c.Type.IsValid() || c.Target <= 0 {
		return shared.ErrInvalidCriteria
	}
	return nil
}

// Challenge is an administrator-authored template.
type Challenge struct {
	ID           uuid.UUID
	Title        string
	Description  string
	Type         Type
	Criteria     Criteria
	PointsReward int64
	BadgeID      *uuid.UUID
	StartAt      time.Time

	// EndAt is optional for recurring (daily, weekly) challenges and required for special ones.
	EndAt *time.Time

	CreatedAt time.Time
}

// NewChallenge validates and builds a challenge template.
func NewChallenge(title, description string, typ Type, criteria Criteria, reward int64, badgeID *uuid.UUID, startAt time.Time, endAt *time.Time, now time.Time) (*Challenge, error) {
	c := &Challenge{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(title),
		Description:  description,
		Type:         typ,
		Criteria:     criteria,
		PointsReward: reward,
		BadgeID:      badgeID,
		StartAt:      startAt,
		EndAt:        endAt,
		CreatedAt:    now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the template for consistency.
func (c *Challenge) Validate() error {
	if c.Title == "" || !c.Type.IsValid() || c.PointsReward < 0 || c.StartAt.IsZero() {
		return shared.ErrInvalidChallenge
	}
	if err := c.Criteria.Validate(); err != nil {
		return err
	}
	if c.Type == TypeSpecial && c.EndAt == nil {
		return shared.ErrInvalidChallenge
	}
	if c.EndAt != nil && !c.EndAt.After(c.StartAt) {
		return shared.ErrInvalidChallenge
	}
	return nil
}

// IsActive reports whether now falls within [StartAt, EndAt).
func (c *Challenge) IsActive(now time.Time) bool {
	if now.Before(c.StartAt) {
		return false
	}
	return c.EndAt == nil || now.Before(*c.EndAt)
}

// Period returns the assignment period key (a civil date) and the expiry
// for an assignment created at now.
func (c *Challenge) Period(now time.Time, cal timeutil.Calendar) (assignedDate, expiresAt time.Time) {
	switch c.Type {
	case TypeWeekly:
		start := cal.StartOfWeek(now)
		assignedDate, expiresAt = cal.CivilDate(start), cal.EndOfWeek(now)
	case TypeSpecial:
		assignedDate, expiresAt = cal.CivilDate(c.StartAt), *c.EndAt
	default:
		assignedDate, expiresAt = cal.CivilDate(now), cal.EndOfDay(now)
	}
	if c.EndAt != nil && c.EndAt.Before(expiresAt) {
		expiresAt = *c.EndAt
	}
	return assignedDate, expiresAt
}
