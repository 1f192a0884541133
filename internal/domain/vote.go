package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote relates one voter identity to one request. The (RequestID, UserID)
// pair is unique; a named voter gets exactly one vote per request.
type Vote struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteOutcome is the result of a cast-vote operation. Rejections are expected
// outcomes, not errors: they travel back to the caller as values.
type VoteOutcome int

const (
	// VoteAccepted means the vote was recorded and the count incremented.
	VoteAccepted VoteOutcome = iota
	// AlreadyVoted means this voter already has a vote on the request.
	AlreadyVoted
	// RequestPlayed means the request is played and immutable for voting.
	RequestPlayed
)

// String returns a short name for the outcome.
func (o VoteOutcome) String() string {
	switch o {
	case VoteAccepted:
		return "accepted"
	case AlreadyVoted:
		return "already_voted"
	case RequestPlayed:
		return "request_played"
	default:
		return "unknown"
	}
}

// KioskVoterPrefix marks disposable voter identities used in kiosk mode.
const KioskVoterPrefix = "kiosk-"

// NewKioskVoterID generates a fresh disposable voter identity. Kiosk voters
// get a new identity per vote and are therefore exempt from the one-vote
// uniqueness constraint: this is the intentional unlimited-voting mode for
// shared devices, distinct from named-user voting.
func NewKioskVoterID() string {
	return KioskVoterPrefix + uuid.New().String()
}
