package domain

import (
	"strings"
	"time"
)

// Request is the core aggregate: one requested song plus everyone who asked
// for it. Repeated submissions of the same title merge into the requesters
// list instead of creating duplicate rows.
type Request struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Votes      int         `json:"votes"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	Requesters []Requester `json:"requesters"`
}

// Requester is one person's submission event attached to a Request.
type Requester struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Name      string    `json:"name"`
	Photo     string    `json:"photo,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsLocked reports whether the request is the locked next-up song.
func (r *Request) IsLocked() bool {
	return r.Status == StatusLocked
}

// IsPlayed reports whether the request reached its terminal state.
func (r *Request) IsPlayed() bool {
	return r.Status == StatusPlayed
}

// Score is the popularity used for queue ordering: votes plus one point per
// requester, so a song asked for by three people outranks one vote.
func (r *Request) Score() int {
	return r.Votes + len(r.Requesters)
}

// MatchesTitle reports whether this request is the unplayed merge target for
// a submission of title. Matching is case-insensitive on the trimmed title.
func (r *Request) MatchesTitle(title string) bool {
	if r.IsPlayed() {
		return false
	}
	return NormalizeTitle(r.Title) == NormalizeTitle(title)
}

// NormalizeTitle folds a title for case-insensitive comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Lock transitions the request to StatusLocked. Played requests cannot be
// locked again.
func (r *Request) Lock() error {
	if r.IsPlayed() {
		return ErrRequestPlayed
	}
	r.Status = StatusLocked
	return nil
}

// Unlock clears the lock; no-op unless the request holds it.
func (r *Request) Unlock() {
	if r.Status == StatusLocked {
		r.Status = StatusPending
	}
}

// MarkPlayed retires the request. The lock, if held, is dropped with it.
func (r *Request) MarkPlayed() {
	r.Status = StatusPlayed
}
