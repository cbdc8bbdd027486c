package query

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// GetXPHistoryQuery pages through a user's ledger, newest first.
type GetXPHistoryQuery struct {
	UserID int64
	Limit  int
	Offset int
}

// PointEntryDTO is one ledger row.
type PointEntryDTO struct {
	SourceType  string    `json:"source_type"`
	SourceID    string    `json:"source_id"`
	Points      int64     `json:"points"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	CourseID    *int64    `json:"course_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetXPHistoryHandler reads the ledger.
type GetXPHistoryHandler struct {
	ledger ledger.Repository
}

// NewGetXPHistoryHandler creates a new GetXPHistoryHandler.
func NewGetXPHistoryHandler(repo ledger.Repository) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{ledger: repo}
}

// Handle executes the query.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) ([]PointEntryDTO, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if q.Offset < 0 {
		return nil, shared.ErrInvalidPage
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := h.ledger.ListByUser(ctx, q.UserID, limit, q.Offset)
	if err != nil {
		return nil, readErr("ledger", "ListByUser", err)
	}

	result := make([]PointEntryDTO, len(entries))
	for i, e := range entries {
		result[i] = PointEntryDTO{
			SourceType:  string(e.Source.Type()),
			SourceID:    e.Source.ID(),
			Points:      e.Points,
			Reason:      string(e.Reason),
			Description: e.Description,
			CourseID:    e.CourseID,
			CreatedAt:   e.CreatedAt,
		}
	}
	return result, nil
}
