package challenge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActiveAssignment pairs an assignment with its challenge template.
type ActiveAssignment struct {
	Assignment *Assignment
	Challenge  *Challenge
}

// Repository defines the persistence contract for challenges and assignments.
type Repository interface {
	// CreateChallenge inserts a new template.
	CreateChallenge(ctx context.Context, c *Challenge) error

	// GetChallenge returns a template or shared.ErrChallengeNotFound.
	GetChallenge(ctx context.Context, id uuid.UUID) (*Challenge, error)

	// ListActiveChallenges returns templates of the given type active at now.
	ListActiveChallenges(ctx context.Context, typ Type, now time.Time) ([]*Challenge, error)

	// CreateAssignment inserts the assignment; false when the user already
	// has one for (challenge, assigned_date).
	CreateAssignment(ctx context.Context, a *Assignment) (bool, error)

	// GetAssignmentForUpdate returns and locks an assignment or shared.ErrAssignmentNotFound.
	GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*Assignment, error)

	// ListAcceptingForUpdate locks and returns the user's pending and
	// in-progress assignments whose challenge counts the criteria type.
	ListAcceptingForUpdate(ctx context.Context, userID int64, criteria CriteriaType) ([]ActiveAssignment, error)

	// ListByUser returns the user's assignments, newest period first.
	// A zero status returns every status.
	ListByUser(ctx context.Context, userID int64, status Status) ([]*Assignment, error)

	// ListOverdueForUpdate locks up to limit pending or in-progress
	// assignments whose expiry is before now, skipping rows locked elsewhere.
	ListOverdueForUpdate(ctx context.Context, now time.Time, limit int) ([]*Assignment, error)

	// SaveAssignment writes the assignment's mutable columns.
	SaveAssignment(ctx context.Context, a *Assignment) error

	// CountCompletedByUser counts assignments that reached completed or claimed.
	CountCompletedByUser(ctx context.Context, userID int64) (int, error)
}
