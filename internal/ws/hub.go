package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the envelope pushed to subscribed clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client pairs a connection with a write lock. gorilla/websocket allows at
// most one concurrent writer per connection, and two mutations fanning out to
// the same user would otherwise write simultaneously.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(e); err != nil {
		c.conn.Close()
	}
}

// Hub manages active WebSocket connections keyed by user ID and provides
// helper methods to broadcast events to one or more users. It stands in for
// the reactive query subscriptions of a hosted document platform: whenever a
// mutation touches a record, the affected users get an event and re-fetch.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]*client),
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*client)
	}
	h.conns[userID][conn] = &client{conn: conn}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Notify sends the event to all active connections of the provided user
// IDs. Delivery is best-effort; failed connections are closed and cleaned
// up on their next lifecycle step.
func (h *Hub) Notify(userIDs []int64, event string, payload any) {
	h.mu.RLock()
	var targets []*client
	for _, uid := range userIDs {
		for _, c := range h.conns[uid] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	e := Event{Type: event, Payload: payload}
	for _, c := range targets {
		c.send(e)
	}
}

// NotifyAll sends the event to all connected users.
func (h *Hub) NotifyAll(event string, payload any) {
	h.mu.RLock()
	var targets []*client
	for _, conns := range h.conns {
		for _, c := range conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	e := Event{Type: event, Payload: payload}
	for _, c := range targets {
		c.send(e)
	}
}

// ConnectedUsers returns the IDs of users with at least one live connection.
func (h *Hub) ConnectedUsers() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]int64, 0, len(h.conns))
	for uid := range h.conns {
		ids = append(ids, uid)
	}
	return ids
}
