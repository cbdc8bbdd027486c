// Package eventhandler contains bus subscribers that react to domain events.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ═══════════════════════════════════════════════════════════════════════════
// LEARNING EVENTS HANDLER
// Entry point for inbound learning events. Each event is processed as one
// idempotent unit by RecordLearningEventHandler; errors are returned so the
// transport can decide between redelivery and termination.
// ═══════════════════════════════════════════════════════════════════════════

// LearningEventProcessor processes one learning event.
type LearningEventProcessor interface {
	Handle(ctx context.Context, ev shared.LearningEvent) (*command.LearningEventResult, error)
}

// OnLearningEventHandler adapts the processor to the event bus.
type OnLearningEventHandler struct {
	processor LearningEventProcessor
	logger    *zap.Logger
}

// NewOnLearningEventHandler creates a new OnLearningEventHandler.
func NewOnLearningEventHandler(processor LearningEventProcessor, log *zap.Logger) *OnLearningEventHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OnLearningEventHandler{
		processor: processor,
		logger:    log.With(zap.String("handler", "on_learning_event")),
	}
}

// Register subscribes the handler to every learning event type.
func (h *OnLearningEventHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range shared.LearningEventTypes() {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnLearningEventHandler) Handle(ctx context.Context, event shared.Event) error {
	ev, ok := event.(shared.LearningEvent)
	if !ok {
		h.logger.Warn("received non-learning event", logger.EventType(string(event.EventType())))
		return nil
	}

	res, err := h.processor.Handle(ctx, ev)
	if err != nil {
		return err
	}

	if res.Duplicate {
		h.logger.Debug("duplicate learning event skipped",
			logger.EventType(string(ev.EventType())),
			zap.String("event_key", ev.DedupKey()),
		)
		return nil
	}

	fields := []zap.Field{
		logger.EventType(string(ev.EventType())),
		logger.UserID(ev.UserID()),
		zap.Int("challenges_completed", len(res.Progress.Completed)),
	}
	if res.XP != nil && res.XP.Entry != nil {
		fields = append(fields, logger.XPAmount(res.XP.Entry.Points))
	}
	if len(res.Badges) > 0 {
		fields = append(fields, zap.Strings("badges", res.Badges))
	}
	h.logger.Info("learning event processed", fields...)

	return nil
}
