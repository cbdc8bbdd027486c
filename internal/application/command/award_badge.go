package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD BADGE COMMAND
// Resolves (or provisions) a catalog badge by code and grants it once per
// user. It never writes XP; callers pair it with a bonus AwardXP keyed by a
// deterministic source when they want both.
// ══════════════════════════════════════════════════════════════════════════════

// AwardBadgeCommand contains the data to grant a badge.
type AwardBadgeCommand struct {
	UserID      int64
	Code        string
	Name        string
	Description string

	// Type and Threshold are used only when the badge is provisioned.
	Type      badge.Type
	Threshold int
}

// Validate validates the command.
func (c AwardBadgeCommand) Validate() error {
	if c.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if c.Code == "" {
		return shared.ErrInvalidBadgeCode
	}
	return nil
}

// AwardBadgeResult contains the outcome of a grant.
type AwardBadgeResult struct {
	Badge *badge.Badge

	// Granted is false when the user already held the badge.
	Granted bool
}

// CreateBadgeCommand registers a catalog badge.
type CreateBadgeCommand struct {
	Code        string
	Name        string
	Description string
	Icon        string
	Type        badge.Type
	Threshold   int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardBadgeHandler handles badge grants and catalog registration.
type AwardBadgeHandler struct {
	env    Env
	stats  *StatAggregator
	logger *zap.Logger
}

// NewAwardBadgeHandler creates a new AwardBadgeHandler.
func NewAwardBadgeHandler(env Env, aggregator *StatAggregator) *AwardBadgeHandler {
	env = env.withDefaults()
	return &AwardBadgeHandler{
		env:    env,
		stats:  aggregator,
		logger: env.Logger.With(logger.Component("badge_awarder")),
	}
}

// Handle grants the badge in its own transaction.
func (h *AwardBadgeHandler) Handle(ctx context.Context, cmd AwardBadgeCommand) (*AwardBadgeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *AwardBadgeResult
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		var err error
		result, err = h.award(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("award badge: %w", err)
	}
	return result, nil
}

// CreateBadge registers a catalog badge. Registering an existing code returns the stored badge.
func (h *AwardBadgeHandler) CreateBadge(ctx context.Context, cmd CreateBadgeCommand) (*badge.Badge, error) {
	var stored *badge.Badge
	err := h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		b, err := badge.NewBadge(cmd.Code, cmd.Name, cmd.Description, cmd.Type, cmd.Threshold, tx.now)
		if err != nil {
			return err
		}
		b.Icon = cmd.Icon
		stored, err = tx.repos.Badges.GetOrCreate(ctx, b)
		return storageErr("badge", "Create", err)
	})
	if err != nil {
		return nil, fmt.Errorf("create badge: %w", err)
	}
	return stored, nil
}

// award runs inside the caller's transaction.
func (h *AwardBadgeHandler) award(ctx context.Context, tx *txScope, cmd AwardBadgeCommand) (*AwardBadgeResult, error) {
	candidate, err := badge.NewBadge(cmd.Code, cmd.Name, cmd.Description, cmd.Type, cmd.Threshold, tx.now)
	if err != nil {
		return nil, err
	}

	b, err := tx.repos.Badges.GetOrCreate(ctx, candidate)
	if err != nil {
		return nil, storageErr("badge", "GetOrCreate", err)
	}
	return h.grant(ctx, tx, cmd.UserID, b)
}

// awardByID grants an existing catalog badge, as referenced by a challenge.
func (h *AwardBadgeHandler) awardByID(ctx context.Context, tx *txScope, userID int64, badgeID uuid.UUID) (*AwardBadgeResult, error) {
	b, err := tx.repos.Badges.GetByID(ctx, badgeID)
	if err != nil {
		return nil, storageErr("badge", "GetByID", err)
	}
	return h.grant(ctx, tx, userID, b)
}

func (h *AwardBadgeHandler) grant(ctx context.Context, tx *txScope, userID int64, b *badge.Badge) (*AwardBadgeResult, error) {
	granted, err := tx.repos.Badges.Grant(ctx, badge.UserBadge{UserID: userID, BadgeID: b.ID, EarnedAt: tx.now})
	if err != nil {
		return nil, storageErr("badge", "Grant", err)
	}
	if !granted {
		return &AwardBadgeResult{Badge: b}, nil
	}

	if err := h.stats.incrementBadges(ctx, tx, userID); err != nil {
		return nil, err
	}
	tx.emit(shared.NewBadgeAwardedEvent(userID, b.Code, b.Name))

	h.logger.Info("badge awarded",
		logger.UserID(userID),
		logger.BadgeCode(b.Code),
	)
	return &AwardBadgeResult{Badge: b, Granted: true}, nil
}
