package sse

import (
	"sync"

	"go.uber.org/zap"
)

// Event a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client a connected SSE client
type Client struct {
	ID     string
	UserID string
	Roles  []string
	Events chan Event
}

func (c *Client) hasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Hub fans events out to connected clients. A client whose buffer is full misses
// the event rather than blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)),
	)
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("SSE client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Broadcast sends to every client and returns how many received it.
func (h *Hub) Broadcast(event Event) int {
	return h.send(event, func(*Client) bool { return true })
}

// SendToUser sends to every connection of one user.
func (h *Hub) SendToUser(userID string, event Event) int {
	return h.send(event, func(c *Client) bool { return c.UserID == userID })
}

// SendToRole sends to every connection whose user holds role.
func (h *Hub) SendToRole(role string, event Event) int {
	return h.send(event, func(c *Client) bool { return c.hasRole(role) })
}

func (h *Hub) send(event Event, match func(*Client) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Events <- event:
			delivered++
		default:
			h.logger.Warn("SSE client buffer full, skipping event",
				zap.String("client_id", client.ID),
				zap.String("event", event.EventType),
			)
		}
	}
	return delivered
}

// ClientCount number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
