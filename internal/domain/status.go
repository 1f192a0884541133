package domain

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a request. Locked and Played are mutually
// exclusive by construction: a request holds exactly one status at a time,
// and marking a request played always drops the lock.
type Status int

const (
	// StatusPending means the request is queued and unlocked.
	StatusPending Status = iota
	// StatusLocked means the request is the next one to be performed.
	// At most one unplayed request may hold this status.
	StatusLocked
	// StatusPlayed is the terminal state; played requests leave all active views.
	StatusPlayed
)

// String returns the persisted name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLocked:
		return "locked"
	case StatusPlayed:
		return "played"
	default:
		return "unknown"
	}
}

// ParseStatus converts a persisted status name plus the legacy flag pair into
// a Status. The flags win over the name so that rows written by older clients
// (which stored is_locked/is_played independently) still map cleanly.
func ParseStatus(name string, isLocked, isPlayed bool) Status {
	if isPlayed {
		return StatusPlayed
	}
	if isLocked {
		return StatusLocked
	}
	if name == "played" {
		return StatusPlayed
	}
	if name == "locked" {
		return StatusLocked
	}
	return StatusPending
}

// MarshalJSON encodes the status as its string name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its string name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "pending":
		*s = StatusPending
	case "locked":
		*s = StatusLocked
	case "played":
		*s = StatusPlayed
	default:
		return fmt.Errorf("unknown status %q", name)
	}
	return nil
}
