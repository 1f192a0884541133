package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// ChangeChannel is the redis pub/sub channel carrying queue change events.
const ChangeChannel = "songrequest:changes"

// RedisNotifier is the redis pub/sub Notifier. All instances publish and
// listen on one shared channel; the instance ID travels in the event origin
// for logging, not for filtering.
type RedisNotifier struct {
	client     *redis.Client
	instanceID string
	log        logger.Logger

	published int64
	received  int64
	failed    int64
}

// NewRedisNotifier creates a redis-backed notifier.
func NewRedisNotifier(client *redis.Client, instanceID string, log logger.Logger) *RedisNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &RedisNotifier{
		client:     client,
		instanceID: instanceID,
		log:        log.WithFields(logger.F("component", "notify")),
	}
}

// Publish sends the event to the shared change channel.
func (n *RedisNotifier) Publish(ctx context.Context, event domain.ChangeEvent) error {
	event.Origin = n.instanceID

	payload, err := json.Marshal(event)
	if err != nil {
		atomic.AddInt64(&n.failed, 1)
		return fmt.Errorf("marshal change event: %w", err)
	}

	if err := n.client.Publish(ctx, ChangeChannel, payload).Err(); err != nil {
		atomic.AddInt64(&n.failed, 1)
		return fmt.Errorf("publish to %s: %w", ChangeChannel, err)
	}

	atomic.AddInt64(&n.published, 1)
	n.log.Debug("published change event",
		logger.F("op", string(event.Op)),
		logger.F("relation", event.Relation),
		logger.F("request_id", event.RequestID))
	return nil
}

// Listen subscribes to the change channel and delivers events until ctx is
// cancelled or the subscription drops. Reconnection is the caller's job.
func (n *RedisNotifier) Listen(ctx context.Context, handler func(domain.ChangeEvent)) error {
	pubsub := n.client.Subscribe(ctx, ChangeChannel)
	defer pubsub.Close()

	// Confirm the subscription before reporting events.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", ChangeChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", ChangeChannel)
			}
			atomic.AddInt64(&n.received, 1)

			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				n.log.Warn("dropping malformed change event", logger.Err(err))
				continue
			}
			handler(event)
		}
	}
}

// Ping probes the redis connection.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Stats returns publish/receive counters.
func (n *RedisNotifier) Stats() (published, received, failed int64) {
	return atomic.LoadInt64(&n.published), atomic.LoadInt64(&n.received), atomic.LoadInt64(&n.failed)
}

// Close is a no-op; the redis client is owned by the caller.
func (n *RedisNotifier) Close() error {
	return nil
}
