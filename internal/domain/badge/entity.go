// Package badge contains the badge catalog and one-time user grants.
package badge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
)

// Type classifies a badge.
type Type string

const (
	TypeAchievement Type = "achievement"
	TypeMilestone   Type = "milestone"
	TypeCompletion  Type = "completion"
)

// IsValid checks if the badge type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeAchievement, TypeMilestone, TypeCompletion:
		return true
	}
	return false
}

// Badge is a catalog entry.
type Badge struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Icon        string
	Type        Type
	Threshold   int
	CreatedAt   time.Time
}

// NewBadge validates and builds a catalog entry.
func NewBadge(code, name, description string, typ Type, threshold int, now time.Time) (*Badge, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.ErrInvalidBadgeCode
	}
	if typ == "" {
		typ = TypeAchievement
	}
	if !typ.IsValid() {
		return nil, shared.ErrInvalidBadgeType
	}
	if name == "" {
		name = code
	}
	return &Badge{
		ID:          uuid.New(),
		Code:        code,
		Name:        name,
		Description: description,
		Type:        typ,
		Threshold:   threshold,
		CreatedAt:   now,
	}, nil
}

// UserBadge records that a user earned a badge. Unique per (UserID, BadgeID).
type UserBadge struct {
	UserID   int64
	BadgeID  uuid.UUID
	EarnedAt time.Time
}

// EarnedBadge joins a grant with its catalog entry for display.
type EarnedBadge struct {
	Badge    Badge
	EarnedAt time.Time
}

// Well-known codes for badges the engine provisions itself.

// CourseCompletionCode returns the badge code for completing a course.
func CourseCompletionCode(courseID int64) string {
	return fmt.Sprintf("course-%d-complete", courseID)
}

// StreakCode returns the badge code for reaching a streak of n days.
func StreakCode(days int) string {
	return fmt.Sprintf("streak-%d", days)
}

// LevelCode returns the badge code for reaching level n.
func LevelCode(level int) string {
	return fmt.Sprintf("level-%d", level)
}

// Repository defines the persistence contract for badges.
type Repository interface {
	// GetOrCreate returns the catalog row for b.Code, inserting b if the code is new.
	GetOrCreate(ctx context.Context, b *Badge) (*Badge, error)

	// GetByID returns a catalog row or shared.ErrBadgeNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Badge, error)

	// GetByCode returns a catalog row or shared.ErrBadgeNotFound.
	GetByCode(ctx context.Context, code string) (*Badge, error)

	// Grant inserts the user badge; false when the user already holds it.
	Grant(ctx context.Context, ub UserBadge) (bool, error)

	// ListByUser returns the user's badges, most recent first.
	ListByUser(ctx context.Context, userID int64) ([]EarnedBadge, error)

	// CountByUser returns the number of badges the user holds.
	CountByUser(ctx context.Context, userID int64) (int, error)
}
