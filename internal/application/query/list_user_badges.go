package query

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/shared"
)

// UserBadgeDTO is one earned badge.
type UserBadgeDTO struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Type        string    `json:"type"`
	EarnedAt    time.Time `json:"earned_at"`
}

// ListUserBadgesHandler lists a user's badges, most recent first.
type ListUserBadgesHandler struct {
	badges badge.Repository
}

// NewListUserBadgesHandler creates a new ListUserBadgesHandler.
func NewListUserBadgesHandler(repo badge.Repository) *ListUserBadgesHandler {
	return &ListUserBadgesHandler{badges: repo}
}

// Handle executes the query.
func (h *ListUserBadgesHandler) Handle(ctx context.Context, userID int64) ([]UserBadgeDTO, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	earned, err := h.badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, readErr("badge", "ListByUser", err)
	}

	result := make([]UserBadgeDTO, len(earned))
	for i, e := range earned {
		result[i] = UserBadgeDTO{
			Code:        e.Badge.Code,
			Name:        e.Badge.Name,
			Description: e.Badge.Description,
			Icon:        e.Badge.Icon,
			Type:        string(e.Badge.Type),
			EarnedAt:    e.EarnedAt,
		}
	}
	return result, nil
}
