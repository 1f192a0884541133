package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/projection"
)

const (
	// WriteWait is the write deadline for outbound frames.
	WriteWait = 10 * time.Second
	// PongWait is how long to wait for a pong before dropping the client.
	PongWait = 60 * time.Second
	// PingPeriod must be shorter than PongWait.
	PingPeriod = 30 * time.Second
	// MaxMessageSize caps inbound frames; clients only ever send pings.
	MaxMessageSize = 4096
)

// Client is one connected browser.
type Client struct {
	ID   string
	Mode projection.SortMode

	conn *websocket.Conn
	send chan []byte

	active    int32
	closeOnce sync.Once
	hub       *Hub
}

// NewClient wraps an upgraded websocket connection.
func NewClient(id string, mode projection.SortMode, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:     id,
		Mode:   mode,
		conn:   conn,
		send:   make(chan []byte, 16),
		active: 1,
		hub:    hub,
	}
}

// Send queues a payload; slow clients drop frames rather than block the hub.
func (c *Client) Send(payload []byte) {
	if atomic.LoadInt32(&c.active) != 1 {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// Close tears the connection down once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.active, 0)
		close(c.send)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(WriteWait),
		)
		c.conn.Close()
	})
}

// ReadPump consumes inbound frames until the connection drops. Clients do not
// send application messages; the pump exists for pong handling and to notice
// disconnects.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump pushes queued payloads and periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
