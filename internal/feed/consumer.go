// Package feed turns raw change notifications into authoritative request
// snapshots. Every relevant event triggers a full refetch, not an incremental
// patch: queues hold tens of rows, and the refetch doubles as the recovery
// path after a dropped subscription.
package feed

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/notify"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// Lister is the read side of the store the consumer refetches from.
type Lister interface {
	ListRequests(ctx context.Context) ([]domain.Request, error)
}

// Snapshot is one authoritative request list delivery.
type Snapshot []domain.Request

// Config tunes the consumer.
type Config struct {
	// PollInterval drives the polling fallback when push is unavailable.
	PollInterval time.Duration
	// Backoff paces resubscription after transport failures.
	Backoff Backoff
}

// DefaultConfig returns the default consumer configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Backoff:      DefaultBackoff(),
	}
}

// Consumer subscribes to storage change notifications and republishes full
// authoritative snapshots. Push transport is preferred; when capability
// detection fails (no notifier, or its Ping fails), it degrades to polling
// the same Lister on an interval.
type Consumer struct {
	store    Lister
	notifier notify.Notifier
	cfg      Config
	log      logger.Logger

	mu          sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
	latest      Snapshot
	hasSnapshot bool

	refreshCh  chan struct{}
	reconnects int64
	polling    atomic.Bool
}

// New creates a consumer. notifier may be nil, which forces polling mode.
func New(store Lister, notifier notify.Notifier, cfg Config, log logger.Logger) *Consumer {
	if log == nil {
		log = logger.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Backoff.InitialWait <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Consumer{
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		log:         log.WithFields(logger.F("component", "feed")),
		subscribers: make(map[int]func(Snapshot)),
		refreshCh:   make(chan struct{}, 1),
	}
}

// Subscribe registers fn and delivers the current snapshot immediately,
// before any change event. The returned function unsubscribes.
func (c *Consumer) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	snapshot := c.latest
	have := c.hasSnapshot
	c.mu.Unlock()

	if !have {
		// First subscriber before Start finished its initial fetch: fetch
		// synchronously so the contract of an immediate snapshot holds.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if fetched, err := c.store.ListRequests(ctx); err == nil {
			snapshot = fetched
			c.setLatest(fetched)
		}
	}
	fn(snapshot)

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Latest returns the most recent snapshot.
func (c *Consumer) Latest() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Polling reports whether the consumer degraded to the polling fallback.
func (c *Consumer) Polling() bool {
	return c.polling.Load()
}

// Reconnects returns how many times the push subscription was re-established.
func (c *Consumer) Reconnects() int64 {
	return atomic.LoadInt64(&c.reconnects)
}

// Refresh requests an immediate refetch outside the event flow.
func (c *Consumer) Refresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Start runs the consumer until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go c.refreshLoop(ctx)

	if c.pushAvailable(ctx) {
		c.polling.Store(false)
		c.runPush(ctx)
		return
	}

	c.polling.Store(true)
	c.log.Warn("change notifications unavailable, falling back to polling",
		logger.F("interval", c.cfg.PollInterval.String()))
	c.runPoll(ctx)
}

func (c *Consumer) pushAvailable(ctx context.Context) bool {
	if c.notifier == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.notifier.Ping(pingCtx) == nil
}

// runPush listens for change events, refetching on every relevant one. A lost
// subscription is retried forever under bounded exponential backoff; each
// re-establishment starts with an immediate refetch, which is how events
// missed while disconnected are recovered.
func (c *Consumer) runPush(ctx context.Context) {
	attempt := 0
	for {
		c.Refresh()

		err := c.notifier.Listen(ctx, func(event domain.ChangeEvent) {
			if !event.Touches(domain.RelationRequests, domain.RelationRequesters, domain.RelationVotes) {
				return
			}
			c.Refresh()
		})
		if ctx.Err() != nil {
			return
		}

		attempt++
		atomic.AddInt64(&c.reconnects, 1)
		wait := c.cfg.Backoff.Wait(attempt)
		c.log.Warn("change feed subscription lost, reconnecting",
			logger.Err(err), logger.F("attempt", attempt), logger.F("wait", wait.String()))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Consumer) runPoll(ctx context.Context) {
	c.Refresh()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// refreshLoop serializes refetches so a burst of change events collapses into
// at most one in-flight query.
func (c *Consumer) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refreshCh:
			c.refetch(ctx)
		}
	}
}

func (c *Consumer) refetch(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	requests, err := c.store.ListRequests(fetchCtx)
	if err != nil {
		c.log.Warn("snapshot refetch failed", logger.Err(err))
		return
	}

	if changed := c.setLatest(requests); !changed {
		return
	}

	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	snapshot := c.latest
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// setLatest stores the snapshot and reports whether it differs from the
// previous one. The first snapshot always counts as changed.
func (c *Consumer) setLatest(requests Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasSnapshot && reflect.DeepEqual(c.latest, requests) {
		return false
	}
	c.latest = requests
	c.hasSnapshot = true
	return true
}
