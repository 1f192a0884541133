package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/projection"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/ws"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// WSHandler upgrades browsers onto the queue fanout hub.
type WSHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewWSHandler creates the websocket handler.
func NewWSHandler(hub *ws.Hub, log logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Default()
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Event pages are served from arbitrary venue domains.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve handles GET /ws?sort=audience|admin.
func (h *WSHandler) Serve(c *gin.Context) {
	if err := h.hub.Acquire(); err != nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.Release()
		h.log.Warn("websocket upgrade failed", logger.Err(err))
		return
	}

	mode := projection.ParseSortMode(c.Query("sort"))
	client := ws.NewClient(uuid.New().String(), mode, conn, h.hub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
