package notify

import (
	"context"
	"sync"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

// LocalNotifier is an in-process Notifier. Publish fans out synchronously to
// every listener's buffer; Listen drains its own buffer. Used by the memory
// store and in tests.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[int]chan domain.ChangeEvent
	nextID    int
	closed    bool
}

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{
		listeners: make(map[int]chan domain.ChangeEvent),
	}
}

// Publish delivers the event to every listener. Listeners that fall behind
// their buffer drop events; the consumer's full-refetch model tolerates that.
func (n *LocalNotifier) Publish(_ context.Context, event domain.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrStoreClosed
	}
	for _, ch := range n.listeners {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Listen delivers events to handler until ctx is cancelled.
func (n *LocalNotifier) Listen(ctx context.Context, handler func(domain.ChangeEvent)) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return domain.ErrStoreClosed
	}
	id := n.nextID
	n.nextID++
	ch := make(chan domain.ChangeEvent, 64)
	n.listeners[id] = ch
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			handler(event)
		}
	}
}

// Ping always succeeds while the notifier is open.
func (n *LocalNotifier) Ping(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrStoreClosed
	}
	return nil
}

// Close shuts the notifier down. Active listeners return on their next ctx check.
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}
