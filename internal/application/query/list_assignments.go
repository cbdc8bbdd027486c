package query

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ASSIGNMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChallengeCacheSize bounds the in-process challenge template cache.
const DefaultChallengeCacheSize = 512

// ListAssignmentsQuery selects a user's assignments.
type ListAssignmentsQuery struct {
	UserID int64

	// Status filters by persisted status name; empty returns every status.
	Status string
}

// AssignmentDTO is an assignment joined with its challenge template.
type AssignmentDTO struct {
	ID            uuid.UUID  `json:"id"`
	ChallengeID   uuid.UUID  `json:"challenge_id"`
	Title         string     `json:"title"`
	Type          string     `json:"type"`
	Criteria      string     `json:"criteria"`
	Target        int64      `json:"target"`
	Progress      int64      `json:"progress"`
	PointsReward  int64      `json:"points_reward"`
	Status        string     `json:"status"`
	AssignedDate  time.Time  `json:"assigned_date"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RewardClaimed bool       `json:"reward_claimed"`
}

// ListAssignmentsHandler lists assignments. Challenge templates are immutable
// once created, so they are cached by id for the life of the process.
type ListAssignmentsHandler struct {
	repo       challenge.Repository
	challenges *lru.Cache
}

// NewListAssignmentsHandler creates a new ListAssignmentsHandler.
func NewListAssignmentsHandler(repo challenge.Repository, cacheSize int) (*ListAssignmentsHandler, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultChallengeCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &ListAssignmentsHandler{repo: repo, challenges: cache}, nil
}

// Handle executes the query.
func (h *ListAssignmentsHandler) Handle(ctx context.Context, q ListAssignmentsQuery) ([]AssignmentDTO, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	var status challenge.Status
	if q.Status != "" {
		s, err := challenge.ParseStatus(q.Status)
		if err != nil {
			return nil, shared.WrapError("challenge", "ListAssignments", shared.ErrInvalidInput, "unknown status filter", err)
		}
		status = s
	}

	assignments, err := h.repo.ListByUser(ctx, q.UserID, status)
	if err != nil {
		return nil, readErr("challenge", "ListByUser", err)
	}

	result := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		c, err := h.challenge(ctx, a.ChallengeID())
		if err != nil {
			return nil, err
		}
		result = append(result, toAssignmentDTO(a, c))
	}
	return result, nil
}

func (h *ListAssignmentsHandler) challenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	if v, ok := h.challenges.Get(id); ok {
		return v.(*challenge.Challenge), nil
	}

	c, err := h.repo.GetChallenge(ctx, id)
	if err != nil {
		return nil, readErr("challenge", "GetChallenge", err)
	}
	h.challenges.Add(id, c)
	return c, nil
}

func toAssignmentDTO(a *challenge.Assignment, c *challenge.Challenge) AssignmentDTO {
	return AssignmentDTO{
		ID:            a.ID(),
		ChallengeID:   c.ID,
		Title:         c.Title,
		Type:          string(c.Type),
		Criteria:      string(c.Criteria.Type),
		Target:        c.Criteria.Target,
		Progress:      a.Progress(),
		PointsReward:  c.PointsReward,
		Status:        a.Status().String(),
		AssignedDate:  a.AssignedDate(),
		ExpiresAt:     a.ExpiresAt(),
		CompletedAt:   a.CompletedAt(),
		RewardClaimed: a.RewardClaimed(),
	}
}
