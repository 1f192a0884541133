package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

func TestLocalNotifierDelivers(t *testing.T) {
	n := NewLocalNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.ChangeEvent, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Listen(ctx, func(event domain.ChangeEvent) {
			received <- event
		})
	}()

	// Give the listener a moment to register.
	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.listeners) == 1
	}, time.Second, 5*time.Millisecond)

	event := domain.ChangeEvent{ID: "ev-1", Op: domain.OpInsert, Relation: domain.RelationRequests}
	require.NoError(t, n.Publish(ctx, event))

	select {
	case got := <-received:
		assert.Equal(t, "ev-1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	<-done
}

func TestLocalNotifierClosed(t *testing.T) {
	n := NewLocalNotifier()
	require.NoError(t, n.Close())

	assert.Error(t, n.Ping(context.Background()))
	assert.Error(t, n.Publish(context.Background(), domain.ChangeEvent{}))
	assert.Error(t, n.Listen(context.Background(), func(domain.ChangeEvent) {}))
}

func TestRedisNotifierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := NewRedisNotifier(client, "instance-a", nil)
	listener := NewRedisNotifier(client, "instance-b", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.ChangeEvent, 4)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- listener.Listen(ctx, func(event domain.ChangeEvent) {
			received <- event
		})
	}()

	// Wait for the subscription to be live before publishing.
	require.Eventually(t, func() bool {
		return client.PubSubNumSub(ctx, ChangeChannel).Val()[ChangeChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	event := domain.ChangeEvent{
		ID:         "ev-1",
		Op:         domain.OpUpdate,
		Relation:   domain.RelationVotes,
		RequestID:  "req-1",
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case got := <-received:
		assert.Equal(t, "ev-1", got.ID)
		assert.Equal(t, domain.RelationVotes, got.Relation)
		assert.Equal(t, "instance-a", got.Origin,
			"origin travels for logging but delivery is unfiltered")
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	require.NoError(t, <-listenErr)

	published, receivedCount, failed := publisher.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(0), receivedCount)
	assert.Equal(t, int64(0), failed)
	_, receivedCount, _ = listener.Stats()
	assert.Equal(t, int64(1), receivedCount)
}

func TestRedisNotifierSelfDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewRedisNotifier(client, "instance-a", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.ChangeEvent, 1)
	go func() {
		_ = n.Listen(ctx, func(event domain.ChangeEvent) {
			received <- event
		})
	}()

	require.Eventually(t, func() bool {
		return client.PubSubNumSub(ctx, ChangeChannel).Val()[ChangeChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, n.Publish(ctx, domain.ChangeEvent{ID: "ev-self", Relation: domain.RelationRequests}))

	// The publishing instance hears its own events: reconciliation on the
	// originating node depends on that.
	select {
	case got := <-received:
		assert.Equal(t, "ev-self", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("self-published event not delivered")
	}
}

func TestRedisNotifierPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewRedisNotifier(client, "instance-a", nil)
	assert.NoError(t, n.Ping(context.Background()))

	mr.Close()
	assert.Error(t, n.Ping(context.Background()))
}
