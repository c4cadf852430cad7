package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/gin-gonic/gin"
)

// EventHandler streams workflow notifications over SSE
type EventHandler struct {
	hub       *sse.Hub
	heartbeat time.Duration
}

func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{hub: hub, heartbeat: 30 * time.Second}
}

// Stream GET /events?token=xxx
// The client receives events addressed to the user and to each of their roles.
func (h *EventHandler) Stream(c *gin.Context) {
	userID := GetUserID(c)
	clientID := fmt.Sprintf("%s_%d", userID, time.Now().UnixNano())
	client := &sse.Client{
		ID:     clientID,
		UserID: userID,
		Roles:  GetRoles(c),
		Events: make(chan sse.Event, 64),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(clientID)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", clientID)
	w.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, event.Data)
			w.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			w.Flush()
		}
	}
}
