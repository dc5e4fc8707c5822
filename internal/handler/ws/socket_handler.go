package wshandler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"crm-notification-service/internal/middleware"
	"crm-notification-service/pkg/notifier/ws"
)

type WSHandler struct {
	manager *ws.Manager
}

func NewWSHandler(manager *ws.Manager) *WSHandler {
	return &WSHandler{manager: manager}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: tighten with allowed origins once the frontend domains settle
		return true
	},
}

// HandleNotifications upgrades HTTP -> WebSocket and registers the connection
// in the in-app fan-out registry.
func (h *WSHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	log.Printf("[NOTIFICATION][WS] userID=%s", userID)

	c := h.manager.Add(userID, conn)

	// Reader loop: listen for pongs and client messages
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		c.Touch()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.manager.Remove(c)
}
