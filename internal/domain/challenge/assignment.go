package challenge

import (
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment is one user's instance of a challenge for a period.
// Status and progress change only through the transition methods.
type Assignment struct {
	id            uuid.UUID
	userID        int64
	challengeID   uuid.UUID
	assignedDate  time.Time
	status        Status
	progress      int64
	completedAt   *time.Time
	rewardClaimed bool
	expiresAt     time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewAssignment creates a pending assignment with zero progress.
func NewAssignment(userID int64, challengeID uuid.UUID, assignedDate, expiresAt, now time.Time) *Assignment {
	return &Assignment{
		id:           uuid.New(),
		userID:       userID,
		challengeID:  challengeID,
		assignedDate: assignedDate,
		status:       StatusPending,
		expiresAt:    expiresAt,
		createdAt:    now,
		updatedAt:    now,
	}
}

// Record is the flat persisted form of an assignment.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	UserID          int64      `json:"user_id"`
	ChallengeID     uuid.UUID  `json:"challenge_id"`
	AssignedDate    time.Time  `json:"assigned_date"`
	Status          Status     `json:"status"`
	CurrentProgress int64      `json:"current_progress"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RewardClaimed   bool       `json:"reward_claimed"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Rehydrate rebuilds an assignment from storage, rejecting inconsistent rows.
func Rehydrate(r Record) (*Assignment, error) {
	bad := shared.NewDomainError("challenge", "Rehydrate", shared.ErrInvalidStateTransition, "inconsistent assignment record")

	switch r.Status {
	case StatusPending:
		if r.CurrentProgress != 0 || r.CompletedAt != nil || r.RewardClaimed {
			return nil, bad
		}
	case StatusInProgress, StatusExpired:
		if r.CompletedAt != nil || r.RewardClaimed {
			return nil, bad
		}
	case StatusCompleted:
		if r.CompletedAt == nil || r.RewardClaimed {
			return nil, bad
		}
	case StatusClaimed:
		if r.CompletedAt == nil || !r.RewardClaimed {
			return nil, bad
		}
	default:
		return nil, bad
	}

	return &Assignment{
		id:            r.ID,
		userID:        r.UserID,
		challengeID:   r.ChallengeID,
		assignedDate:  r.AssignedDate,
		status:        r.Status,
		progress:      r.CurrentProgress,
		completedAt:   r.CompletedAt,
		rewardClaimed: r.RewardClaimed,
		expiresAt:     r.ExpiresAt,
		createdAt:     r.CreatedAt,
		updatedAt:     r.UpdatedAt,
	}, nil
}

// Record returns the flat persisted form.
func (a *Assignment) Record() Record {
	return Record{
		ID:              a.id,
		UserID:          a.userID,
		ChallengeID:     a.challengeID,
		AssignedDate:    a.assignedDate,
		Status:          a.status,
		CurrentProgress: a.progress,
		CompletedAt:     a.completedAt,
		RewardClaimed:   a.rewardClaimed,
		ExpiresAt:       a.expiresAt,
		CreatedAt:       a.createdAt,
		UpdatedAt:       a.updatedAt,
	}
}

// ID returns the assignment id.
func (a *Assignment) ID() uuid.UUID { return a.id }

// UserID returns the assigned user.
func (a *Assignment) UserID() int64 { return a.userID }

// ChallengeID returns the template this assignment instantiates.
func (a *Assignment) ChallengeID() uuid.UUID { return a.challengeID }

// AssignedDate is the period key: the civil day, week start or special start date.
func (a *Assignment) AssignedDate() time.Time { return a.assignedDate }

// Status returns the lifecycle state.
func (a *Assignment) Status() Status { return a.status }

// Progress returns the accumulated progress toward the target.
func (a *Assignment) Progress() int64 { return a.progress }

// CompletedAt is set once the target is reached.
func (a *Assignment) CompletedAt() *time.Time { return a.completedAt }

// RewardClaimed reports whether the completion was acknowledged.
func (a *Assignment) RewardClaimed() bool { return a.rewardClaimed }

// ExpiresAt is the end of the assignment period.
func (a *Assignment) ExpiresAt() time.Time { return a.expiresAt }

// UpdatedAt is the time of the last mutation.
func (a *Assignment) UpdatedAt() time.Time { return a.updatedAt }

// IsOverdue reports whether the period ended before now.
func (a *Assignment) IsOverdue(now time.Time) bool { return a.expiresAt.Before(now) }

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressOutcome describes the effect of ApplyProgress.
type ProgressOutcome struct {
	Previous  int64
	Current   int64
	Started   bool
	Completed bool
}

// ApplyProgress adds increment toward target. Reaching the target completes
// the assignment. Frozen or overdue assignments reject the update.
func (a *Assignment) ApplyProgress(increment, target int64, now time.Time) (ProgressOutcome, error) {
	if increment <= 0 {
		return ProgressOutcome{}, shared.ErrInvalidIncrement
	}
	if err := a.acceptsProgress(now); err != nil {
		return ProgressOutcome{}, err
	}
	return a.setProgress(a.progress+increment, target, now), nil
}

// RaiseProgress lifts progress to level when level is higher, for criteria
// measured as a running value rather than a count. Progress never decreases;
// a level at or below the current progress changes nothing.
func (a *Assignment) RaiseProgress(level, target int64, now time.Time) (ProgressOutcome, error) {
	if level <= 0 {
		return ProgressOutcome{}, shared.ErrInvalidIncrement
	}
	if err := a.acceptsProgress(now); err != nil {
		return ProgressOutcome{}, err
	}
	if level <= a.progress {
		return ProgressOutcome{Previous: a.progress, Current: a.progress}, nil
	}
	return a.setProgress(level, target, now), nil
}

func (a *Assignment) acceptsProgress(now time.Time) error {
	if !a.status.AcceptsProgress() || a.IsOverdue(now) {
		return shared.ErrAssignmentFrozen
	}
	return nil
}

func (a *Assignment) setProgress(next, target int64, now time.Time) ProgressOutcome {
	out := ProgressOutcome{Previous: a.progress}
	a.progress = next
	out.Current = a.progress

	switch {
	case a.progress >= target:
		a.transition(StatusCompleted)
		t := now
		a.completedAt = &t
		out.Completed = true
	case a.status == StatusPending:
		a.transition(StatusInProgress)
		out.Started = true
	}

	a.updatedAt = now
	return out
}

// Changed reports whether the update moved progress.
func (o ProgressOutcome) Changed() bool {
	return o.Current != o.Previous
}

// Claim acknowledges a completed assignment. It never changes points.
func (a *Assignment) Claim(now time.Time) error {
	if a.status != StatusCompleted || a.rewardClaimed {
		return shared.ErrNotClaimable
	}
	a.transition(StatusClaimed)
	a.rewardClaimed = true
	a.updatedAt = now
	return nil
}

// Expire moves an active assignment to the terminal expired state.
func (a *Assignment) Expire(now time.Time) error {
	if !a.status.CanTransitionTo(StatusExpired) {
		return shared.ErrAssignmentNotActive
	}
	a.transition(StatusExpired)
	a.updatedAt = now
	return nil
}

// transition panics on an illegal move; callers check legality first.
func (a *Assignment) transition(next Status) {
	if !a.status.CanTransitionTo(next) {
		panic("challenge: illegal transition " + a.status.String() + " -> " + next.String())
	}
	a.status = next
}
