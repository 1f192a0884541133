package domain

import "errors"

// Sentinel errors shared across store implementations.
var (
	// ErrRequestNotFound means the target request does not exist.
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestPlayed means the operation is invalid on a played request.
	ErrRequestPlayed = errors.New("request already played")
	// ErrStoreClosed means the store has shut down.
	ErrStoreClosed = errors.New("store closed")
)
