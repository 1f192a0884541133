// Package ws fans authoritative queue snapshots out to connected browsers.
// Each client subscribes with a sort mode; on every snapshot the hub projects
// the queue per mode and pushes it. Clients apply their own local optimistic
// overlay on top, so the hub only ever broadcasts authoritative state.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/overlay"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/projection"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// QueueMessage is the payload pushed to websocket clients.
type QueueMessage struct {
	Type     string           `json:"type"`
	Mode     string           `json:"mode"`
	Requests []domain.Request `json:"requests"`
}

// Hub manages websocket connections and queue fanout.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	limiter *ConnectionLimiter
	log     logger.Logger

	register   chan *Client
	unregister chan *Client
	snapshots  chan []domain.Request

	totalRegistered int64
	current         int64
}

// NewHub creates a hub capped at maxConnections clients.
func NewHub(maxConnections int, log logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		limiter:    NewConnectionLimiter(maxConnections),
		log:        log.WithFields(logger.F("component", "ws")),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		snapshots:  make(chan []domain.Request, 16),
	}
}

// Start runs the hub loop until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	h.log.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case snapshot := <-h.snapshots:
			h.handleSnapshot(snapshot)
		}
	}
}

// Register queues a client for registration.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish hands a fresh authoritative snapshot to the hub. Dropping under
// backpressure is fine: a newer snapshot is always on the way.
func (h *Hub) Publish(snapshot []domain.Request) {
	select {
	case h.snapshots <- snapshot:
	default:
		h.log.Warn("snapshot channel full, dropping")
	}
}

// Acquire reserves a connection slot; callers must Release via Unregister.
func (h *Hub) Acquire() error {
	return h.limiter.Acquire()
}

// Release frees a slot taken by Acquire when registration never happened.
func (h *Hub) Release() {
	h.limiter.Release()
}

// CurrentConnections returns the number of live clients.
func (h *Hub) CurrentConnections() int64 {
	return atomic.LoadInt64(&h.current)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	atomic.AddInt64(&h.totalRegistered, 1)
	atomic.AddInt64(&h.current, 1)
	h.log.Info("client connected",
		logger.F("client_id", client.ID), logger.F("mode", client.Mode.String()),
		logger.F("total", atomic.LoadInt64(&h.current)))
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	_, present := h.clients[client.ID]
	delete(h.clients, client.ID)
	h.mu.Unlock()

	if present {
		client.Close("unregistered")
		h.limiter.Release()
		atomic.AddInt64(&h.current, -1)
	}
}

func (h *Hub) handleSnapshot(snapshot []domain.Request) {
	empty := overlay.View{VoteDeltas: map[string]int{}}
	payloads := map[projection.SortMode][]byte{}

	for _, mode := range []projection.SortMode{projection.SortAudience, projection.SortAdmin} {
		msg := QueueMessage{
			Type:     "queue",
			Mode:     mode.String(),
			Requests: projection.Project(snapshot, empty, mode),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Error("marshal queue message", logger.Err(err))
			return
		}
		payloads[mode] = data
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.Send(payloads[client.Mode])
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close("server shutting down")
		delete(h.clients, id)
	}
	h.log.Info("websocket hub stopped")
}
