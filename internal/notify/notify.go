// Package notify carries change notifications between the store and its
// subscribers. The redis transport fans events out across instances; the
// local transport serves single-process deployments and tests.
package notify

import (
	"context"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

// Notifier is the change-notification transport.
//
// Events published here reach every listener, including the publisher's own
// instance: the originating client reconciles its optimistic state from the
// same feed as everyone else, so self-filtering would break reconciliation.
type Notifier interface {
	// Publish sends a change event to all listeners.
	Publish(ctx context.Context, event domain.ChangeEvent) error

	// Listen blocks and delivers events to handler until ctx is cancelled
	// (returns nil) or the transport fails (returns the transport error).
	// The caller owns reconnection.
	Listen(ctx context.Context, handler func(domain.ChangeEvent)) error

	// Ping probes the transport. Consumers use it for capability detection:
	// a failing Ping selects the polling fallback.
	Ping(ctx context.Context) error

	Close() error
}
