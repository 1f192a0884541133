// Package service orchestrates the request/vote/lock flow: apply a
// speculative overlay entry, issue the atomic store operation, then commit or
// discard the entry. The change feed closes the loop by reconciling the
// overlay against each authoritative snapshot.
package service

import (
	"context"
	"time"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/feed"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/overlay"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/projection"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// SubmitRetry bounds submission retries. Submissions are safe to retry (the
// merge-by-title path makes a duplicate attempt converge on the same
// request); votes and locks are not auto-retried, the user retries those.
type SubmitRetry struct {
	MaxAttempts int
	Backoff     feed.Backoff
}

// DefaultSubmitRetry returns the default submission retry policy.
func DefaultSubmitRetry() SubmitRetry {
	return SubmitRetry{
		MaxAttempts: 3,
		Backoff: feed.Backoff{
			InitialWait: 150 * time.Millisecond,
			MaxWait:     1 * time.Second,
			Multiplier:  2.0,
		},
	}
}

// SubmitResult is the user-facing outcome of a submission.
type SubmitResult struct {
	RequestID string `json:"request_id"`
	Merged    bool   `json:"merged"`
}

// RequestService is the single entry point for queue mutations and reads.
type RequestService struct {
	store    storage.Store
	consumer *feed.Consumer
	overlay  *overlay.Overlay
	retry    SubmitRetry
	log      logger.Logger

	// onSnapshot, when set, receives every reconciled authoritative snapshot
	// (after overlay reconciliation) for fanout to connected clients.
	onSnapshot func(feed.Snapshot)
}

// New creates the request service.
func New(store storage.Store, consumer *feed.Consumer, ov *overlay.Overlay, retry SubmitRetry, log logger.Logger) *RequestService {
	if log == nil {
		log = logger.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultSubmitRetry()
	}
	return &RequestService{
		store:    store,
		consumer: consumer,
		overlay:  ov,
		retry:    retry,
		log:      log.WithFields(logger.F("component", "service")),
	}
}

// OnSnapshot registers the snapshot fanout hook. Must be called before Start.
func (s *RequestService) OnSnapshot(fn func(feed.Snapshot)) {
	s.onSnapshot = fn
}

// Start wires the reconciliation loop and runs the feed consumer and overlay
// sweeper until ctx is cancelled.
func (s *RequestService) Start(ctx context.Context) {
	s.consumer.Subscribe(func(snapshot feed.Snapshot) {
		s.overlay.Reconcile(snapshot)
		if s.onSnapshot != nil {
			s.onSnapshot(snapshot)
		}
	})

	go s.overlay.Start(ctx)
	s.consumer.Start(ctx)
}

// Submit queues a song request. The speculative entry is visible instantly;
// the store write is retried with bounded backoff before the entry is
// reverted and the failure surfaced.
func (s *RequestService) Submit(ctx context.Context, title, artist string, requester domain.Requester) (SubmitResult, error) {
	token, _ := s.overlay.ApplyRequest(title, artist, requester)

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		result, err := s.store.Submit(ctx, title, artist, requester)
		if err == nil {
			s.overlay.Commit(token)
			s.consumer.Refresh()
			return SubmitResult{RequestID: result.RequestID, Merged: !result.Created}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < s.retry.MaxAttempts {
			wait := s.retry.Backoff.Wait(attempt)
			s.log.Warn("submit attempt failed, retrying",
				logger.Err(err), logger.F("attempt", attempt), logger.F("wait", wait.String()))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}

	s.overlay.Discard(token)
	s.log.Error("submit failed after retries", logger.Err(lastErr), logger.F("title", title))
	return SubmitResult{}, lastErr
}

// Vote casts a vote for requestID. Kiosk voters pass an empty voterID and get
// a disposable identity, which makes them exempt from the one-vote rule. The
// speculative increment is reverted on any rejection or failure; no silent
// retry, the user decides whether to try again.
func (s *RequestService) Vote(ctx context.Context, requestID, voterID string) (domain.VoteOutcome, error) {
	if voterID == "" {
		voterID = domain.NewKioskVoterID()
	}

	token := s.overlay.ApplyVote(requestID, s.currentVotes(requestID))

	outcome, err := s.store.CastVote(ctx, requestID, voterID)
	if err != nil {
		s.overlay.Discard(token)
		return 0, err
	}
	if outcome != domain.VoteAccepted {
		s.overlay.Discard(token)
		return outcome, nil
	}

	s.overlay.Commit(token)
	s.consumer.Refresh()
	return domain.VoteAccepted, nil
}

// Lock makes requestID the single locked next-up request.
func (s *RequestService) Lock(ctx context.Context, requestID string) error {
	if err := s.store.Lock(ctx, requestID); err != nil {
		return err
	}
	s.consumer.Refresh()
	return nil
}

// Unlock releases the lock on requestID.
func (s *RequestService) Unlock(ctx context.Context, requestID string) error {
	if err := s.store.Unlock(ctx, requestID); err != nil {
		return err
	}
	s.consumer.Refresh()
	return nil
}

// MarkPlayed retires requestID, dropping its lock with it.
func (s *RequestService) MarkPlayed(ctx context.Context, requestID string) error {
	if err := s.store.MarkPlayed(ctx, requestID); err != nil {
		return err
	}
	s.consumer.Refresh()
	return nil
}

// Reset hard-deletes the whole queue.
func (s *RequestService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.consumer.Refresh()
	return nil
}

// Queue returns the projected queue for the given sort mode.
func (s *RequestService) Queue(mode projection.SortMode) []domain.Request {
	return projection.Project(s.consumer.Latest(), s.overlay.View(), mode)
}

// Get returns one authoritative request.
func (s *RequestService) Get(ctx context.Context, requestID string) (*domain.Request, error) {
	return s.store.GetRequest(ctx, requestID)
}

// currentVotes reads the authoritative count from the latest snapshot so the
// overlay knows which count confirms the speculative increment.
func (s *RequestService) currentVotes(requestID string) int {
	for _, req := range s.consumer.Latest() {
		if req.ID == requestID {
			return req.Votes
		}
	}
	return 0
}
