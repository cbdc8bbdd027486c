package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// {"event_type": "...", "occurred_at": "RFC3339", "payload": {...}}
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSubjectPrefix is the subject namespace of learning events.
const DefaultSubjectPrefix = "learning"

// ErrMalformedMessage marks a message that can never be processed.
var ErrMalformedMessage = errors.New("malformed event message")

var subjectSuffixes = map[shared.EventType]string{
	shared.EventLessonCompleted:   "lesson.completed",
	shared.EventSubmissionCreated: "submission.created",
	shared.EventAttemptCompleted:  "attempt.completed",
	shared.EventCourseCompleted:   "course.completed",
}

// Subject returns the subject a learning event type is published on.
func Subject(prefix string, t shared.EventType) (string, error) {
	suffix, ok := subjectSuffixes[t]
	if !ok {
		return "", fmt.Errorf("%w: no subject for %s", ErrMalformedMessage, t)
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return strings.TrimSuffix(prefix, ".") + "." + suffix, nil
}

// Subjects returns the subjects of every learning event type.
func Subjects(prefix string) []string {
	types := shared.LearningEventTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		s, _ := Subject(prefix, t)
		out = append(out, s)
	}
	return out
}

// Encode serializes an event into the wire envelope.
func Encode(event shared.Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(shared.EventEnvelope{
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
	})
}

// DecodeLearningEvent parses a wire envelope into a concrete learning event.
// Every error wraps ErrMalformedMessage.
func DecodeLearningEvent(data []byte) (shared.LearningEvent, error) {
	var env shared.EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	switch env.Type {
	case shared.EventLessonCompleted:
		var ev shared.LessonCompletedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.BaseEvent = baseEvent(env.Type, ev.User, occurredAt)
		return ev, nil

	case shared.EventSubmissionCreated:
		var ev shared.SubmissionCreatedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.BaseEvent = baseEvent(env.Type, ev.User, occurredAt)
		return ev, nil

	case shared.EventAttemptCompleted:
		var ev shared.AttemptCompletedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.BaseEvent = baseEvent(env.Type, ev.User, occurredAt)
		return ev, nil

	case shared.EventCourseCompleted:
		var ev shared.CourseCompletedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		ev.BaseEvent = baseEvent(env.Type, ev.User, occurredAt)
		return ev, nil
	}

	return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformedMessage, env.Type)
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func baseEvent(t shared.EventType, userID int64, at time.Time) shared.BaseEvent {
	return shared.BaseEvent{
		Type:        t,
		Timestamp:   at.UTC(),
		AggregateId: strconv.FormatInt(userID, 10),
	}
}
