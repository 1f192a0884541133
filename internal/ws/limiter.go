package ws

import (
	"errors"
	"sync/atomic"
)

// DefaultMaxConnections caps concurrent websocket clients.
const DefaultMaxConnections = 2000

// ErrConnectionLimitExceeded is returned when the hub is full.
var ErrConnectionLimitExceeded = errors.New("connection limit exceeded")

// ConnectionLimiter bounds concurrent connections with a semaphore.
type ConnectionLimiter struct {
	maxConnections int32
	currentCount   int32
	semaphore      chan struct{}
}

// NewConnectionLimiter creates a limiter for maxConnections clients.
func NewConnectionLimiter(maxConnections int) *ConnectionLimiter {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &ConnectionLimiter{
		maxConnections: int32(maxConnections),
		semaphore:      make(chan struct{}, maxConnections),
	}
}

// Acquire takes a connection slot.
func (l *ConnectionLimiter) Acquire() error {
	select {
	case l.semaphore <- struct{}{}:
		atomic.AddInt32(&l.currentCount, 1)
		return nil
	default:
		return ErrConnectionLimitExceeded
	}
}

// Release frees a connection slot.
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.semaphore:
		atomic.AddInt32(&l.currentCount, -1)
	default:
		// Guard against double release.
	}
}

// CurrentCount returns the number of held slots.
func (l *ConnectionLimiter) CurrentCount() int32 {
	return atomic.LoadInt32(&l.currentCount)
}

// Available returns the number of free slots.
func (l *ConnectionLimiter) Available() int32 {
	return l.maxConnections - l.CurrentCount()
}
