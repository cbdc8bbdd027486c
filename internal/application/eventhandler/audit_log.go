package eventhandler

import (
	"context"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG HANDLER
// Writes every committed gamification event to the structured log.
// ═══════════════════════════════════════════════════════════════════════════

// AuditLogHandler logs outbound gamification events.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler.
func NewAuditLogHandler(log *zap.Logger) *AuditLogHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLogHandler{logger: log.With(logger.Component("audit"))}
}

// Register subscribes to every outbound event type.
func (h *AuditLogHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventXPAwarded,
		shared.EventLevelUp,
		shared.EventBadgeAwarded,
		shared.EventChallengeCompleted,
		shared.EventChallengeClaimed,
		shared.EventLeaderboardRebuilt,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *AuditLogHandler) Handle(_ context.Context, event shared.Event) error {
	h.logger.Info("gamification event",
		logger.EventType(string(event.EventType())),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.Any("payload", event.Payload()),
	)
	return nil
}
