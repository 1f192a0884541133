package domain

import "time"

// ChangeOp is the kind of storage mutation a change event describes.
type ChangeOp string

const (
	// OpInsert is a row insertion.
	OpInsert ChangeOp = "insert"
	// OpUpdate is a row update.
	OpUpdate ChangeOp = "update"
	// OpDelete is a row deletion.
	OpDelete ChangeOp = "delete"
)

// Relation names for change events.
const (
	RelationRequests   = "requests"
	RelationRequesters = "requesters"
	RelationVotes      = "user_votes"
)

// ChangeEvent is the change-feed payload. There is no ordering or delivery
// guarantee beyond eventual delivery while connected; consumers refetch the
// full request list on every event rather than patching incrementally.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Op         ChangeOp  `json:"op"`
	Relation   string    `json:"relation"`
	RequestID  string    `json:"request_id,omitempty"`
	Origin     string    `json:"origin,omitempty"` // publishing instance, for logging only
	OccurredAt time.Time `json:"occurred_at"`
}

// Touches reports whether the event concerns one of the given relations.
func (e ChangeEvent) Touches(relations ...string) bool {
	for _, rel := range relations {
		if e.Relation == rel {
			return true
		}
	}
	return false
}
