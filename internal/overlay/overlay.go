// Package overlay holds client-local speculative state: submissions and votes
// shown instantly, before the store confirms them. Entries live in one keyed
// map behind one mutex, so there is a single serialized update path; reads
// are snapshot merges, never partial views.
package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

// OptimisticIDPrefix marks speculative request ids so they can never collide
// with server-assigned ids.
const OptimisticIDPrefix = "opt-"

// DefaultGraceWindow bounds how long a confirmed entry may outlive its
// authoritative counterpart's arrival.
const DefaultGraceWindow = 1500 * time.Millisecond

// Token identifies one speculative entry.
type Token string

// View is a consistent read of the overlay: speculative requests that have no
// authoritative counterpart yet, plus pending vote increments by request id.
type View struct {
	Requests   []domain.Request
	VoteDeltas map[string]int
}

type entryKind int

const (
	kindRequest entryKind = iota
	kindVote
)

type entry struct {
	token     Token
	kind      entryKind
	createdAt time.Time
	committed bool

	// kindRequest
	request domain.Request

	// kindVote
	requestID string
	expected  int // authoritative vote count that confirms this delta
}

// Overlay is the optimistic entry cache.
type Overlay struct {
	mu      sync.Mutex
	entries map[Token]*entry
	grace   time.Duration
}

// New creates an overlay with the given grace window.
func New(grace time.Duration) *Overlay {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Overlay{
		entries: make(map[Token]*entry),
		grace:   grace,
	}
}

// ApplyRequest inserts a speculative request. The entry is always synthesized
// pending: locked and played are authoritative-only states.
func (o *Overlay) ApplyRequest(title, artist string, requester domain.Requester) (Token, domain.Request) {
	now := time.Now()
	token := Token(uuid.New().String())
	requester.CreatedAt = now

	req := domain.Request{
		ID:         OptimisticIDPrefix + uuid.New().String(),
		Title:      title,
		Artist:     artist,
		Votes:      0,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		Requesters: []domain.Requester{requester},
	}

	o.mu.Lock()
	o.entries[token] = &entry{
		token:     token,
		kind:      kindRequest,
		createdAt: now,
		request:   req,
	}
	o.mu.Unlock()

	return token, req
}

// ApplyVote inserts a speculative +1 for requestID. currentVotes is the
// authoritative count at apply time; the delta is confirmed once the
// authoritative count reaches currentVotes+1.
func (o *Overlay) ApplyVote(requestID string, currentVotes int) Token {
	token := Token(uuid.New().String())

	o.mu.Lock()
	o.entries[token] = &entry{
		token:     token,
		kind:      kindVote,
		createdAt: time.Now(),
		requestID: requestID,
		expected:  currentVotes + 1,
	}
	o.mu.Unlock()

	return token
}

// Commit marks the entry's operation as accepted by the store. The entry
// stays visible until Reconcile sees the authoritative counterpart or the
// grace window expires. Committing a dead token is a no-op.
func (o *Overlay) Commit(token Token) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[token]; ok {
		e.committed = true
	}
}

// Discard removes the entry immediately, fully reverting its speculative
// effect. Discarding a dead token is a no-op: late failures arriving after
// the feed already reconciled are ignored.
func (o *Overlay) Discard(token Token) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, token)
}

// Reconcile drops entries that the authoritative snapshot now satisfies: a
// request entry whose title has an unplayed counterpart, and a vote entry
// whose request reached the expected count (or disappeared).
func (o *Overlay) Reconcile(authoritative []domain.Request) {
	byID := make(map[string]*domain.Request, len(authoritative))
	for i := range authoritative {
		byID[authoritative[i].ID] = &authoritative[i]
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for token, e := range o.entries {
		switch e.kind {
		case kindRequest:
			for i := range authoritative {
				if authoritative[i].MatchesTitle(e.request.Title) {
					delete(o.entries, token)
					break
				}
			}
		case kindVote:
			req, ok := byID[e.requestID]
			if !ok || req.Votes >= e.expected {
				delete(o.entries, token)
			}
		}
	}
}

// View returns the current overlay merge. Expired entries are filtered out
// here as well as by the sweeper, so a read never shows stale speculation.
func (o *Overlay) View() View {
	now := time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	view := View{VoteDeltas: make(map[string]int)}
	for _, e := range o.entries {
		if now.Sub(e.createdAt) > o.grace {
			continue
		}
		switch e.kind {
		case kindRequest:
			view.Requests = append(view.Requests, e.request)
		case kindVote:
			view.VoteDeltas[e.requestID]++
		}
	}
	return view
}

// Len returns the number of live entries.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Sweep removes entries older than the grace window and returns how many it
// dropped. Expiry is unconditional: it bounds staleness even when the
// authoritative counterpart never arrives.
func (o *Overlay) Sweep() int {
	cutoff := time.Now().Add(-o.grace)

	o.mu.Lock()
	defer o.mu.Unlock()
	swept := 0
	for token, e := range o.entries {
		if e.createdAt.Before(cutoff) {
			delete(o.entries, token)
			swept++
		}
	}
	return swept
}

// Start runs the background sweeper until ctx is cancelled.
func (o *Overlay) Start(ctx context.Context) {
	interval := o.grace / 2
	if interval <= 0 {
		interval = DefaultGraceWindow / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep()
		}
	}
}
