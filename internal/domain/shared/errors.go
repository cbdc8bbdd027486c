// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Infrastructure errors
	ErrStorage              = errors.New("storage failure")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrUnauthorized         = errors.New("unauthorized")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "challenge", "badge"
	Op      string // Operation that failed, e.g., "AwardXp", "Claim"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StorageError wraps a persistence failure so callers can classify it as retryable.
func StorageError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorage, "storage failure", err)
}

// Ledger domain errors
var (
	ErrInvalidPoints  = NewDomainError("ledger", "Validate", ErrInvalidInput, "points must be positive for awards and negative for penalties")
	ErrInvalidSource  = NewDomainError("ledger", "Validate", ErrInvalidInput, "invalid point source")
	ErrInvalidReason  = NewDomainError("ledger", "Validate", ErrInvalidInput, "invalid award reason")
	ErrInvalidUserID  = NewDomainError("ledger", "Validate", ErrInvalidID, "user id must be positive")
	ErrStatsNotFound  = NewDomainError("stats", "Find", ErrNotFound, "user stats not found")
	ErrInvalidCurve   = NewDomainError("stats", "LevelCurve", ErrInvalidInput, "level thresholds must start at 0 and be strictly ascending")
	ErrLedgerNotFound = NewDomainError("ledger", "Find", ErrNotFound, "point entry not found")
)

// Badge domain errors
var (
	ErrBadgeNotFound    = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrInvalidBadgeCode = NewDomainError("badge", "Validate", ErrInvalidInput, "badge code cannot be empty")
	ErrInvalidBadgeType = NewDomainError("badge", "Validate", ErrInvalidInput, "invalid badge type")
)

// Challenge domain errors
var (
	ErrChallengeNotFound   = NewDomainError("challenge", "Find", ErrNotFound, "challenge not found")
	ErrAssignmentNotFound  = NewDomainError("challenge", "FindAssignment", ErrNotFound, "challenge assignment not found")
	ErrInvalidCriteria     = NewDomainError("challenge", "Validate", ErrInvalidInput, "invalid challenge criteria")
	ErrInvalidChallenge    = NewDomainError("challenge", "Validate", ErrInvalidInput, "invalid challenge definition")
	ErrInvalidIncrement    = NewDomainError("challenge", "UpdateProgress", ErrInvalidInput, "progress increment must be positive")
	ErrNotClaimable        = NewDomainError("challenge", "Claim", ErrInvalidStateTransition, "assignment is not claimable")
	ErrAssignmentFrozen    = NewDomainError("challenge", "UpdateProgress", ErrInvalidStateTransition, "assignment no longer accepts progress")
	ErrAssignmentNotActive = NewDomainError("challenge", "Expire", ErrInvalidStateTransition, "assignment is not active")
)

// Leaderboard domain errors
var (
	ErrInvalidCourseID = NewDomainError("leaderboard", "Validate", ErrInvalidID, "course id must be positive")
	ErrInvalidPage     = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid page parameters")
	ErrRankNotFound    = NewDomainError("leaderboard", "Find", ErrNotFound, "user is not ranked")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInvalidState checks if the error is a rejected state transition.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsInvalidState(err) || IsNotFound(err) {
		return false
	}
	return true
}
