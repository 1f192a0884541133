package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/notify"
)

// stubLister serves canned snapshots and counts refetches.
type stubLister struct {
	mu       sync.Mutex
	requests []domain.Request
	err      error
	calls    int
}

func (s *stubLister) ListRequests(context.Context) ([]domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Request, len(s.requests))
	copy(out, s.requests)
	return out, nil
}

func (s *stubLister) set(requests []domain.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = requests
}

func (s *stubLister) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() Config {
	return Config{
		PollInterval: 20 * time.Millisecond,
		Backoff: Backoff{
			InitialWait: 5 * time.Millisecond,
			MaxWait:     20 * time.Millisecond,
			Multiplier:  2.0,
		},
	}
}

func TestSubscribeDeliversImmediateSnapshot(t *testing.T) {
	store := &stubLister{requests: []domain.Request{{ID: "a", Title: "A"}}}
	c := New(store, nil, fastConfig(), nil)

	var got Snapshot
	c.Subscribe(func(s Snapshot) { got = s })

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Len(t, c.Latest(), 1)
}

func TestSubscribeInitialFetchFailure(t *testing.T) {
	store := &stubLister{err: errors.New("db down")}
	c := New(store, nil, fastConfig(), nil)

	delivered := false
	c.Subscribe(func(s Snapshot) {
		delivered = true
		assert.Empty(t, s)
	})
	assert.True(t, delivered, "subscribers always get an initial delivery, even if empty")
}

func TestPushModeRefetchesOnEvent(t *testing.T) {
	store := &stubLister{}
	notifier := notify.NewLocalNotifier()
	c := New(store, notifier, fastConfig(), nil)

	updates := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) { updates <- s })
	<-updates // initial delivery

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	store.set([]domain.Request{{ID: "a", Title: "A"}})

	// Republish until the consumer's subscription is live and the refetch
	// lands; events published before registration are lost by design.
	var snapshot Snapshot
	require.Eventually(t, func() bool {
		_ = notifier.Publish(ctx, domain.ChangeEvent{
			ID: "ev-1", Op: domain.OpInsert, Relation: domain.RelationRequests,
		})
		select {
		case snapshot = <-updates:
			return len(snapshot) == 1
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "a", snapshot[0].ID)
	assert.False(t, c.Polling())
}

func TestIrrelevantEventsIgnored(t *testing.T) {
	store := &stubLister{}
	notifier := notify.NewLocalNotifier()
	c := New(store, notifier, fastConfig(), nil)

	updates := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) { updates <- s })
	<-updates

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	store.set([]domain.Request{{ID: "a"}})
	require.NoError(t, notifier.Publish(ctx, domain.ChangeEvent{
		ID: "ev-1", Op: domain.OpInsert, Relation: "sessions",
	}))

	select {
	case <-updates:
		t.Fatal("event for unrelated relation must not trigger a delivery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollingFallbackWithoutNotifier(t *testing.T) {
	store := &stubLister{}
	c := New(store, nil, fastConfig(), nil)

	updates := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) { updates <- s })
	<-updates

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	require.Eventually(t, func() bool { return c.Polling() }, time.Second, 5*time.Millisecond)

	store.set([]domain.Request{{ID: "a", Title: "A"}})

	select {
	case snapshot := <-updates:
		require.Len(t, snapshot, 1)
	case <-time.After(time.Second):
		t.Fatal("polling never picked up the change")
	}
}

func TestPollingFallbackWhenPingFails(t *testing.T) {
	store := &stubLister{}
	notifier := notify.NewLocalNotifier()
	require.NoError(t, notifier.Close())

	c := New(store, notifier, fastConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	require.Eventually(t, func() bool { return c.Polling() }, time.Second, 5*time.Millisecond)
}

func TestUnchangedSnapshotNotRedelivered(t *testing.T) {
	store := &stubLister{requests: []domain.Request{{ID: "a"}}}
	c := New(store, nil, fastConfig(), nil)

	updates := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) { updates <- s })
	<-updates

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	// Several poll cycles with identical data: no further deliveries.
	select {
	case <-updates:
		t.Fatal("identical snapshot must be suppressed")
	case <-time.After(150 * time.Millisecond):
	}
	assert.Greater(t, store.callCount(), 1, "polling kept refetching")
}

func TestReconnectAfterListenFailure(t *testing.T) {
	store := &stubLister{}
	notifier := &flakyNotifier{failures: 2}
	c := New(store, notifier, fastConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	require.Eventually(t, func() bool { return c.Reconnects() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Polling(), "push mode survives transient subscription loss")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := &stubLister{}
	c := New(store, nil, fastConfig(), nil)

	calls := 0
	unsubscribe := c.Subscribe(func(Snapshot) { calls++ })
	require.Equal(t, 1, calls)
	unsubscribe()

	store.set([]domain.Request{{ID: "a"}})
	c.Refresh()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.refreshLoop(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, calls)
}

// flakyNotifier fails Listen a fixed number of times, then blocks until ctx
// cancellation.
type flakyNotifier struct {
	mu       sync.Mutex
	failures int
}

func (f *flakyNotifier) Publish(context.Context, domain.ChangeEvent) error { return nil }

func (f *flakyNotifier) Listen(ctx context.Context, _ func(domain.ChangeEvent)) error {
	f.mu.Lock()
	remaining := f.failures
	if remaining > 0 {
		f.failures--
	}
	f.mu.Unlock()

	if remaining > 0 {
		return errors.New("subscription dropped")
	}
	<-ctx.Done()
	return nil
}

func (f *flakyNotifier) Ping(context.Context) error { return nil }
func (f *flakyNotifier) Close() error               { return nil }
