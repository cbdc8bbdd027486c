package shared

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
// Learning events are produced by other modules and consumed by the engine;
// gamification events are produced by the engine after a successful commit.
const (
	// Learning events (inbound)
	EventLessonCompleted   EventType = "learning.lesson_completed"
	EventSubmissionCreated EventType = "learning.submission_created"
	EventAttemptCompleted  EventType = "learning.attempt_completed"
	EventCourseCompleted   EventType = "learning.course_completed"

	// Gamification events (outbound)
	EventXPAwarded          EventType = "gamification.xp_awarded"
	EventLevelUp            EventType = "gamification.level_up"
	EventBadgeAwarded       EventType = "gamification.badge_awarded"
	EventChallengeCompleted EventType = "gamification.challenge_completed"
	EventChallengeClaimed   EventType = "gamification.challenge_claimed"
	EventLeaderboardRebuilt EventType = "gamification.leaderboard_rebuilt"
)

// LearningEventTypes lists the inbound event types the engine registers interest in.
func LearningEventTypes() []EventType {
	return []EventType{
		EventLessonCompleted,
		EventSubmissionCreated,
		EventAttemptCompleted,
		EventCourseCompleted,
	}
}

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, userID int64) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: strconv.FormatInt(userID, 10),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning Events
// ═══════════════════════════════════════════════════════════════════════════

// LearningEvent is implemented by every inbound event. It exposes the user
// and a stable key so whole-event processing can be made idempotent.
type LearningEvent interface {
	Event

	// UserID returns the learner the event belongs to.
	UserID() int64

	// DedupKey returns a key that is identical across redeliveries of the same event.
	DedupKey() string
}

// LessonCompletedEvent is emitted when a learner completes a lesson.
type LessonCompletedEvent struct {
	BaseEvent
	LessonID     int64  `json:"lesson_id"`
	User         int64  `json:"user_id"`
	EnrollmentID int64  `json:"enrollment_id"`
	CourseID     *int64 `json:"course_id,omitempty"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id":     e.LessonID,
		"user_id":       e.User,
		"enrollment_id": e.EnrollmentID,
		"course_id":     e.CourseID,
	}
}

// UserID implements LearningEvent.
func (e LessonCompletedEvent) UserID() int64 { return e.User }

// DedupKey implements LearningEvent.
func (e LessonCompletedEvent) DedupKey() string {
	return dedupKey(e.Type, e.User, e.LessonID)
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(userID, lessonID, enrollmentID int64) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:    NewBaseEvent(EventLessonCompleted, userID),
		LessonID:     lessonID,
		User:         userID,
		EnrollmentID: enrollmentID,
	}
}

// SubmissionCreatedEvent is emitted when a learner submits an assignment.
type SubmissionCreatedEvent struct {
	BaseEvent
	SubmissionID int64  `json:"submission_id"`
	User         int64  `json:"user_id"`
	AssignmentID int64  `json:"assignment_id"`
	CourseID     *int64 `json:"course_id,omitempty"`
}

// Payload implements Event interface.
func (e SubmissionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"submission_id": e.SubmissionID,
		"user_id":       e.User,
		"assignment_id": e.AssignmentID,
		"course_id":     e.CourseID,
	}
}

// UserID implements LearningEvent.
func (e SubmissionCreatedEvent) UserID() int64 { return e.User }

// DedupKey implements LearningEvent.
func (e SubmissionCreatedEvent) DedupKey() string {
	return dedupKey(e.Type, e.User, e.SubmissionID)
}

// NewSubmissionCreatedEvent creates a new SubmissionCreatedEvent.
func NewSubmissionCreatedEvent(userID, submissionID, assignmentID int64) SubmissionCreatedEvent {
	return SubmissionCreatedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionCreated, userID),
		SubmissionID: submissionID,
		User:         userID,
		AssignmentID: assignmentID,
	}
}

// AttemptCompletedEvent is emitted when a learner finishes a quiz attempt.
type AttemptCompletedEvent struct {
	BaseEvent
	AttemptID int64  `json:"attempt_id"`
	User      int64  `json:"user_id"`
	CourseID  *int64 `json:"course_id,omitempty"`
}

// Payload implements Event interface.
func (e AttemptCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempt_id": e.AttemptID,
		"user_id":    e.User,
		"course_id":  e.CourseID,
	}
}

// UserID implements LearningEvent.
func (e AttemptCompletedEvent) UserID() int64 { return e.User }

// DedupKey implements LearningEvent.
func (e AttemptCompletedEvent) DedupKey() string {
	return dedupKey(e.Type, e.User, e.AttemptID)
}

// NewAttemptCompletedEvent creates a new AttemptCompletedEvent.
func NewAttemptCompletedEvent(userID, attemptID int64) AttemptCompletedEvent {
	return AttemptCompletedEvent{
		BaseEvent: NewBaseEvent(EventAttemptCompleted, userID),
		AttemptID: attemptID,
		User:      userID,
	}
}

// CourseCompletedEvent is emitted when a learner completes a course.
type CourseCompletedEvent struct {
	BaseEvent
	CourseID     int64 `json:"course_id"`
	EnrollmentID int64 `json:"enrollment_id"`
	User         int64 `json:"user_id"`
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id":     e.CourseID,
		"enrollment_id": e.EnrollmentID,
		"user_id":       e.User,
	}
}

// UserID implements LearningEvent.
func (e CourseCompletedEvent) UserID() int64 { return e.User }

// DedupKey implements LearningEvent.
func (e CourseCompletedEvent) DedupKey() string {
	return dedupKey(e.Type, e.User, e.CourseID)
}

// NewCourseCompletedEvent creates a new CourseCompletedEvent.
func NewCourseCompletedEvent(userID, courseID, enrollmentID int64) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent:    NewBaseEvent(EventCourseCompleted, userID),
		CourseID:     courseID,
		EnrollmentID: enrollmentID,
		User:         userID,
	}
}

func dedupKey(t EventType, userID, sourceID int64) string {
	return string(t) + ":" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(sourceID, 10)
}

// ═══════════════════════════════════════════════════════════════════════════
// Gamification Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after a ledger entry has been committed.
type XPAwardedEvent struct {
	BaseEvent
	User    int64  `json:"user_id"`
	Points  int64  `json:"points"`
	Reason  string `json:"reason"`
	Source  string `json:"source"`
	TotalXP int64  `json:"total_xp"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.User,
		"points":   e.Points,
		"reason":   e.Reason,
		"source":   e.Source,
		"total_xp": e.TotalXP,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID, points int64, reason, source string, totalXP int64) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID),
		User:      userID,
		Points:    points,
		Reason:    reason,
		Source:    source,
		TotalXP:   totalXP,
	}
}

// LevelUpEvent is emitted when an award moves a user to a new level.
type LevelUpEvent struct {
	BaseEvent
	User     int64 `json:"user_id"`
	OldLevel int   `json:"old_level"`
	NewLevel int   `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.User,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID int64, oldLevel, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		User:      userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// BadgeAwardedEvent is emitted when a user earns a badge for the first time.
type BadgeAwardedEvent struct {
	BaseEvent
	User      int64  `json:"user_id"`
	BadgeCode string `json:"badge_code"`
	BadgeName string `json:"badge_name"`
}

// Payload implements Event interface.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.User,
		"badge_code": e.BadgeCode,
		"badge_name": e.BadgeName,
	}
}

// NewBadgeAwardedEvent creates a new BadgeAwardedEvent.
func NewBadgeAwardedEvent(userID int64, code, name string) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventBadgeAwarded, userID),
		User:      userID,
		BadgeCode: code,
		BadgeName: name,
	}
}

// ChallengeCompletedEvent is emitted when an assignment reaches its target.
type ChallengeCompletedEvent struct {
	BaseEvent
	User         int64  `json:"user_id"`
	AssignmentID string `json:"assignment_id"`
	ChallengeID  string `json:"challenge_id"`
	PointsReward int64  `json:"points_reward"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.User,
		"assignment_id": e.AssignmentID,
		"challenge_id":  e.ChallengeID,
		"points_reward": e.PointsReward,
	}
}

// NewChallengeCompletedEvent creates a new ChallengeCompletedEvent.
func NewChallengeCompletedEvent(userID int64, assignmentID, challengeID string, reward int64) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:    NewBaseEvent(EventChallengeCompleted, userID),
		User:         userID,
		AssignmentID: assignmentID,
		ChallengeID:  challengeID,
		PointsReward: reward,
	}
}

// ChallengeClaimedEvent is emitted when a user acknowledges a completed challenge.
type ChallengeClaimedEvent struct {
	BaseEvent
	User         int64  `json:"user_id"`
	AssignmentID string `json:"assignment_id"`
}

// Payload implements Event interface.
func (e ChallengeClaimedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.User,
		"assignment_id": e.AssignmentID,
	}
}

// NewChallengeClaimedEvent creates a new ChallengeClaimedEvent.
func NewChallengeClaimedEvent(userID int64, assignmentID string) ChallengeClaimedEvent {
	return ChallengeClaimedEvent{
		BaseEvent:    NewBaseEvent(EventChallengeClaimed, userID),
		User:         userID,
		AssignmentID: assignmentID,
	}
}

// LeaderboardRebuiltEvent is emitted after a ranking pass commits.
type LeaderboardRebuiltEvent struct {
	BaseEvent
	CourseID *int64 `json:"course_id,omitempty"`
	Entries  int    `json:"entries"`
	Pruned   int64  `json:"pruned"`
}

// Payload implements Event interface.
func (e LeaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"entries":   e.Entries,
		"pruned":    e.Pruned,
	}
}

// NewLeaderboardRebuiltEvent creates a new LeaderboardRebuiltEvent.
func NewLeaderboardRebuiltEvent(courseID *int64, entries int, pruned int64) LeaderboardRebuiltEvent {
	e := LeaderboardRebuiltEvent{
		BaseEvent: NewBaseEvent(EventLeaderboardRebuilt, 0),
		CourseID:  courseID,
		Entries:   entries,
		Pruned:    pruned,
	}
	e.AggregateId = "leaderboard"
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport.
type EventEnvelope struct {
	Type       EventType       `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
