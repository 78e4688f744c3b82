package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/auth"
	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/websocket"
)

// WSHandler upgrades clients onto the event hub. Origin checking is
// deferred to the CORS layer; the token has already been validated by the
// auth middleware by the time the upgrade runs.
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleEvents subscribes the caller to a room. The room is a server id,
// or the catch-all "events" room when omitted.
// GET /api/v1/ws/events?room=srv-xxxx
func (h *WSHandler) HandleEvents(c *gin.Context) {
	claims := c.MustGet("user").(*auth.Claims)

	room := c.Query("room")
	if room == "" {
		room = "events"
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn("ws_upgrade_failed", "error", err)
		return
	}

	client := &websocket.Client{
		ID:       "ws-" + uuid.New().String()[:8],
		UserID:   claims.UserID,
		Username: claims.Username,
		Conn:     conn,
		Room:     room,
		Send:     make(chan *websocket.Message, 64),
		Hub:      h.hub,
	}

	h.hub.Register <- client
	go client.WritePump()
	go client.ReadPump()
}
