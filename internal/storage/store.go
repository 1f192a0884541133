// Package storage defines the persistence surface the queue core depends on.
//
// Every mutation below is a single atomic unit with respect to concurrent
// callers. Clients never read-modify-write vote counts or lock flags through
// narrower primitives; the composite effects (insert vote + increment count,
// clear other locks + set target) live inside the store implementations where
// they can be made atomic.
package storage

import (
	"context"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

// SubmitResult reports where a submission landed.
type SubmitResult struct {
	RequestID string
	// Created is true when a new request row was created, false when the
	// submission merged into an existing unplayed request with the same title.
	Created bool
}

// Store is the shared mutable request table plus its vote ledger.
type Store interface {
	// Submit merges requester into the unplayed request matching title
	// (case-insensitive) or creates a new request with zero votes.
	Submit(ctx context.Context, title, artist string, requester domain.Requester) (SubmitResult, error)

	// CastVote records one vote and increments the request's count as one
	// atomic unit. Rejections (AlreadyVoted, RequestPlayed) are outcomes,
	// not errors; error is reserved for infrastructure failures.
	CastVote(ctx context.Context, requestID, voterID string) (domain.VoteOutcome, error)

	// Lock makes requestID the single locked request, clearing any other
	// lock in the same atomic unit. A reader never observes two locked
	// unplayed requests, even transiently.
	Lock(ctx context.Context, requestID string) error

	// Unlock clears the lock on requestID only; no-op if it was not locked.
	Unlock(ctx context.Context, requestID string) error

	// MarkPlayed retires the request, atomically dropping its lock.
	MarkPlayed(ctx context.Context, requestID string) error

	// Reset hard-deletes every request; requesters and votes cascade.
	Reset(ctx context.Context) error

	// ListRequests returns the full authoritative request list, requesters
	// attached, ordered by creation time descending.
	ListRequests(ctx context.Context) ([]domain.Request, error)

	// GetRequest returns one request with requesters, or ErrRequestNotFound.
	GetRequest(ctx context.Context, requestID string) (*domain.Request, error)

	// PurgePlayed hard-deletes played requests older than the cutoff and
	// returns how many were removed. Used by scheduled maintenance only.
	PurgePlayed(ctx context.Context, olderThanDays int) (int, error)

	Close() error
}
