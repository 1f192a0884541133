// Package memstore is the in-memory Store implementation. It backs tests and
// single-process dev deployments where no postgres/redis pair is available.
//
// A single mutex serializes every mutation, which is what makes the composite
// effects (vote insert + count increment, clear-then-set lock) atomic here.
// Change events are published after the mutex is released so listeners can
// refetch without deadlocking.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/notify"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage"
)

// Store is the in-memory request table, vote ledger, and lock.
type Store struct {
	mu       sync.Mutex
	requests map[string]*requestRow
	votes    map[string]map[string]domain.Vote // requestID -> userID -> vote
	seq      int64
	closed   bool

	notifier notify.Notifier
}

type requestRow struct {
	request domain.Request
	seq     int64 // insertion order, tiebreak for identical timestamps
}

// New creates an empty store publishing change events to notifier.
// A nil notifier disables notifications.
func New(notifier notify.Notifier) *Store {
	return &Store{
		requests: make(map[string]*requestRow),
		votes:    make(map[string]map[string]domain.Vote),
		notifier: notifier,
	}
}

// Submit merges into an unplayed title match or creates a new request.
func (s *Store) Submit(_ context.Context, title, artist string, requester domain.Requester) (storage.SubmitResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.SubmitResult{}, domain.ErrStoreClosed
	}

	now := time.Now()
	requester.ID = uuid.New().String()
	if requester.CreatedAt.IsZero() {
		requester.CreatedAt = now
	}

	var result storage.SubmitResult
	var events []domain.ChangeEvent

	if row := s.findUnplayedByTitle(title); row != nil {
		requester.RequestID = row.request.ID
		row.request.Requesters = append(row.request.Requesters, requester)
		result = storage.SubmitResult{RequestID: row.request.ID, Created: false}
		events = append(events, s.event(domain.OpInsert, domain.RelationRequesters, row.request.ID, now))
	} else {
		id := uuid.New().String()
		requester.RequestID = id
		s.seq++
		s.requests[id] = &requestRow{
			request: domain.Request{
				ID:         id,
				Title:      title,
				Artist:     artist,
				Votes:      0,
				Status:     domain.StatusPending,
				CreatedAt:  now,
				Requesters: []domain.Requester{requester},
			},
			seq: s.seq,
		}
		result = storage.SubmitResult{RequestID: id, Created: true}
		events = append(events,
			s.event(domain.OpInsert, domain.RelationRequests, id, now),
			s.event(domain.OpInsert, domain.RelationRequesters, id, now))
	}
	s.mu.Unlock()

	s.publish(events)
	return result, nil
}

// CastVote records one vote and increments the count as one serialized unit.
func (s *Store) CastVote(_ context.Context, requestID, voterID string) (domain.VoteOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, domain.ErrStoreClosed
	}

	row, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return 0, domain.ErrRequestNotFound
	}
	if row.request.IsPlayed() {
		s.mu.Unlock()
		return domain.RequestPlayed, nil
	}

	ledger := s.votes[requestID]
	if ledger == nil {
		ledger = make(map[string]domain.Vote)
		s.votes[requestID] = ledger
	}
	if _, dup := ledger[voterID]; dup {
		s.mu.Unlock()
		return domain.AlreadyVoted, nil
	}

	now := time.Now()
	ledger[voterID] = domain.Vote{
		ID:        uuid.New().String(),
		RequestID: requestID,
		UserID:    voterID,
		CreatedAt: now,
	}
	row.request.Votes++

	events := []domain.ChangeEvent{
		s.event(domain.OpInsert, domain.RelationVotes, requestID, now),
		s.event(domain.OpUpdate, domain.RelationRequests, requestID, now),
	}
	s.mu.Unlock()

	s.publish(events)
	return domain.VoteAccepted, nil
}

// Lock clears every other lock and sets the target within one critical section.
func (s *Store) Lock(_ context.Context, requestID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}

	target, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRequestNotFound
	}
	if target.request.IsPlayed() {
		s.mu.Unlock()
		return domain.ErrRequestPlayed
	}

	now := time.Now()
	var events []domain.ChangeEvent
	for id, row := range s.requests {
		if id != requestID && row.request.IsLocked() {
			row.request.Unlock()
			events = append(events, s.event(domain.OpUpdate, domain.RelationRequests, id, now))
		}
	}
	if err := target.request.Lock(); err != nil {
		s.mu.Unlock()
		return err
	}
	events = append(events, s.event(domain.OpUpdate, domain.RelationRequests, requestID, now))
	s.mu.Unlock()

	s.publish(events)
	return nil
}

// Unlock clears the lock on requestID only.
func (s *Store) Unlock(_ context.Context, requestID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}

	row, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRequestNotFound
	}
	wasLocked := row.request.IsLocked()
	row.request.Unlock()
	s.mu.Unlock()

	if wasLocked {
		s.publish([]domain.ChangeEvent{s.event(domain.OpUpdate, domain.RelationRequests, requestID, time.Now())})
	}
	return nil
}

// MarkPlayed retires the request; the status transition drops any lock.
func (s *Store) MarkPlayed(_ context.Context, requestID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}

	row, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRequestNotFound
	}
	row.request.MarkPlayed()
	s.mu.Unlock()

	s.publish([]domain.ChangeEvent{s.event(domain.OpUpdate, domain.RelationRequests, requestID, time.Now())})
	return nil
}

// Reset hard-deletes everything; votes and requesters go with their requests.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}
	s.requests = make(map[string]*requestRow)
	s.votes = make(map[string]map[string]domain.Vote)
	s.mu.Unlock()

	s.publish([]domain.ChangeEvent{s.event(domain.OpDelete, domain.RelationRequests, "", time.Now())})
	return nil
}

// ListRequests returns all requests ordered by creation time descending.
func (s *Store) ListRequests(context.Context) ([]domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}

	rows := make([]*requestRow, 0, len(s.requests))
	for _, row := range s.requests {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].request.CreatedAt.Equal(rows[j].request.CreatedAt) {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].request.CreatedAt.After(rows[j].request.CreatedAt)
	})

	out := make([]domain.Request, len(rows))
	for i, row := range rows {
		out[i] = cloneRequest(row.request)
	}
	return out, nil
}

// GetRequest returns a copy of one request.
func (s *Store) GetRequest(_ context.Context, requestID string) (*domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	row, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	req := cloneRequest(row.request)
	return &req, nil
}

// VotesFor returns the vote rows for a request, for ledger inspection.
func (s *Store) VotesFor(requestID string) []domain.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger := s.votes[requestID]
	out := make([]domain.Vote, 0, len(ledger))
	for _, v := range ledger {
		out = append(out, v)
	}
	return out
}

// PurgePlayed hard-deletes played requests older than the cutoff.
func (s *Store) PurgePlayed(_ context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, domain.ErrStoreClosed
	}
	var purged []string
	for id, row := range s.requests {
		if row.request.IsPlayed() && row.request.CreatedAt.Before(cutoff) {
			purged = append(purged, id)
		}
	}
	for _, id := range purged {
		delete(s.requests, id)
		delete(s.votes, id)
	}
	s.mu.Unlock()

	if len(purged) > 0 {
		s.publish([]domain.ChangeEvent{s.event(domain.OpDelete, domain.RelationRequests, "", time.Now())})
	}
	return len(purged), nil
}

// Close shuts the store down.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// findUnplayedByTitle must be called with the mutex held. When two unplayed
// requests share a title (the accepted duplicate race), the older one wins so
// merges stay stable.
func (s *Store) findUnplayedByTitle(title string) *requestRow {
	var match *requestRow
	for _, row := range s.requests {
		if !row.request.MatchesTitle(title) {
			continue
		}
		if match == nil || row.seq < match.seq {
			match = row
		}
	}
	return match
}

func (s *Store) event(op domain.ChangeOp, relation, requestID string, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		ID:         uuid.New().String(),
		Op:         op,
		Relation:   relation,
		RequestID:  requestID,
		OccurredAt: at,
	}
}

func (s *Store) publish(events []domain.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	for _, event := range events {
		_ = s.notifier.Publish(context.Background(), event)
	}
}

func cloneRequest(r domain.Request) domain.Request {
	out := r
	out.Requesters = make([]domain.Requester, len(r.Requesters))
	copy(out.Requesters, r.Requesters)
	return out
}
