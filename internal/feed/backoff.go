package feed

import (
	"math"
	"time"
)

// Backoff computes bounded exponential reconnect delays.
type Backoff struct {
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultBackoff returns the default reconnect policy.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialWait: 200 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// Wait returns the delay before reconnect attempt n (1-based).
func (b Backoff) Wait(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	wait := float64(b.InitialWait) * math.Pow(b.Multiplier, float64(attempt-1))
	if wait > float64(b.MaxWait) {
		wait = float64(b.MaxWait)
	}
	return time.Duration(wait)
}
