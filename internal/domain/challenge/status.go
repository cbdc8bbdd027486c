package challenge

import "fmt"

// Status is the closed set of assignment states.
//
//	pending -> in_progress -> completed -> claimed
//	pending | in_progress -> expired
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusInProgress
	StatusCompleted
	StatusClaimed
	StatusExpired
)

// String returns the persisted name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusClaimed:
		return "claimed"
	case StatusExpired:
		return "expired"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus converts a persisted name back to a Status.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "claimed":
		return StatusClaimed, nil
	case "expired":
		return StatusExpired, nil
	}
	return 0, fmt.Errorf("unknown assignment status %q", v)
}

// AcceptsProgress reports whether the assignment is still counting.
func (s Status) AcceptsProgress() bool {
	switch s {
	case StatusPending, StatusInProgress:
		return true
	case StatusCompleted, StatusClaimed, StatusExpired:
		return false
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusClaimed, StatusExpired:
		return true
	case StatusPending, StatusInProgress, StatusCompleted:
		return false
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted || next == StatusExpired
	case StatusInProgress:
		return next == StatusCompleted || next == StatusExpired
	case StatusCompleted:
		return next == StatusClaimed
	case StatusClaimed, StatusExpired:
		return false
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
