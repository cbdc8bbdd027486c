// Package ledger contains the XP ledger domain: append-only point entries,
// their typed source references, and the XP-to-level curve.
package ledger

import (
	"strconv"
	"strings"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
)

// SourceType identifies which domain produced a point entry.
type SourceType string

const (
	SourceLesson     SourceType = "lesson"
	SourceAssignment SourceType = "assignment"
	SourceAttempt    SourceType = "attempt"
	SourceChallenge  SourceType = "challenge"
	SourceSystem     SourceType = "system"
)

// IsValid checks if the source type is known.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceLesson, SourceAssignment, SourceAttempt, SourceChallenge, SourceSystem:
		return true
	}
	return false
}

// Source is a typed reference to the object that triggered an award.
// Values are built with the per-variant constructors, so a Source always
// carries an identifier of the shape its type expects.
type Source struct {
	typ SourceType
	id  string
}

// LessonSource references a completed lesson.
func LessonSource(lessonID int64) Source {
	return Source{typ: SourceLesson, id: strconv.FormatInt(lessonID, 10)}
}

// AssignmentSource references an assignment submission.
func AssignmentSource(submissionID int64) Source {
	return Source{typ: SourceAssignment, id: strconv.FormatInt(submissionID, 10)}
}

// AttemptSource references a quiz attempt.
func AttemptSource(attemptID int64) Source {
	return Source{typ: SourceAttempt, id: strconv.FormatInt(attemptID, 10)}
}

// ChallengeSource references a user challenge assignment.
func ChallengeSource(assignmentID uuid.UUID) Source {
	return Source{typ: SourceChallenge, id: assignmentID.String()}
}

// SystemSource references an engine-issued award keyed by a deterministic string.
// An empty key produces a system source without an identifier.
func SystemSource(key string) Source {
	return Source{typ: SourceSystem, id: key}
}

// ParseSource rebuilds a Source from its stored parts and validates the identifier shape.
func ParseSource(sourceType, sourceID string) (Source, error) {
	t := SourceType(sourceType)
	switch t {
	case SourceLesson, SourceAssignment, SourceAttempt:
		n, err := strconv.ParseInt(sourceID, 10, 64)
		if err != nil || n <= 0 {
			return Source{}, shared.ErrInvalidSource
		}
		return Source{typ: t, id: sourceID}, nil
	case SourceChallenge:
		id, err := uuid.Parse(sourceID)
		if err != nil {
			return Source{}, shared.ErrInvalidSource
		}
		return ChallengeSource(id), nil
	case SourceSystem:
		return SystemSource(sourceID), nil
	}
	return Source{}, shared.ErrInvalidSource
}

// Type returns the source variant.
func (s Source) Type() SourceType { return s.typ }

// ID returns the variant identifier, empty for an anonymous system source.
func (s Source) ID() string { return s.id }

// IsZero reports whether the source was never set.
func (s Source) IsZero() bool { return s.typ == "" }

// Key returns the canonical "type/id" form.
func (s Source) Key() string {
	if s.id == "" {
		return string(s.typ)
	}
	return string(s.typ) + "/" + s.id
}

// String implements fmt.Stringer.
func (s Source) String() string { return s.Key() }

// NumericID returns the identifier of a lesson, assignment or attempt source.
func (s Source) NumericID() (int64, bool) {
	switch s.typ {
	case SourceLesson, SourceAssignment, SourceAttempt:
		n, err := strconv.ParseInt(s.id, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Reason categorizes why points were granted.
type Reason string

const (
	ReasonCompletion Reason = "completion"
	ReasonScore      Reason = "score"
	ReasonBonus      Reason = "bonus"
	ReasonPenalty    Reason = "penalty"
)

// IsValid checks if the reason is known.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonCompletion, ReasonScore, ReasonBonus, ReasonPenalty:
		return true
	}
	return false
}

// DedupKey builds the duplicate-suppression key for (source_type, source_id, reason).
// The user id is stored alongside the key in its own column.
func DedupKey(source Source, reason Reason) string {
	var b strings.Builder
	b.WriteString(string(source.typ))
	b.WriteByte(':')
	b.WriteString(source.id)
	b.WriteByte(':')
	b.WriteString(string(reason))
	return b.String()
}
