package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/whisperlink/chat_backend/metrics"
)

// Hub is the broadcast router. It maintains the set of live
// connections, per-room subscription groups and per-user personal
// channels, and delivers events best-effort: a slow or dead recipient
// is skipped, never waited on.
type Hub struct {
	mu sync.RWMutex

	// Registered clients
	clients map[*Client]bool

	// Personal channels (userID -> that user's live connections)
	byUser map[uint]map[*Client]bool

	// Room subscription groups (roomID -> subscribed connections)
	rooms map[string]map[*Client]bool
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		byUser:  make(map[uint]map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	if c.authenticated {
		if _, ok := h.byUser[c.userID]; !ok {
			h.byUser[c.userID] = make(map[*Client]bool)
		}
		h.byUser[c.userID][c] = true
	}
	metrics.ActiveConnections.Inc()
}

// Unregister removes a connection from the hub, its rooms and its
// personal channel, and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	if conns, ok := h.byUser[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}

	for roomID, clients := range h.rooms {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	metrics.ActiveConnections.Dec()
}

// Subscribe adds a connection to a room's broadcast group.
func (h *Hub) Subscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
}

// Unsubscribe removes a connection from a room's broadcast group.
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Deliver sends an event to every connection subscribed to a room,
// skipping connections owned by excludeUserID when non-zero. Returns
// the number of connections the event was handed to.
func (h *Hub) Deliver(roomID, event string, payload interface{}, excludeUserID uint) int {
	raw, err := marshalEvent(event, payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[roomID] {
		if excludeUserID != 0 && c.userID == excludeUserID {
			continue
		}
		if h.send(c, raw) {
			delivered++
		}
	}
	return delivered
}

// DeliverToUser sends an event to every live connection of a single
// user (the user's personal channel).
func (h *Hub) DeliverToUser(userID uint, event string, payload interface{}) int {
	raw, err := marshalEvent(event, payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.byUser[userID] {
		if h.send(c, raw) {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll sends an event to every registered connection except
// those owned by excludeUserID.
func (h *Hub) BroadcastAll(event string, payload interface{}, excludeUserID uint) int {
	raw, err := marshalEvent(event, payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if excludeUserID != 0 && c.userID == excludeUserID {
			continue
		}
		if h.send(c, raw) {
			delivered++
		}
	}
	return delivered
}

// Send delivers an event to one connection. It is the only safe path
// for direct replies: the hub mutex keeps the send channel from being
// closed by a concurrent unregister mid-send.
func (h *Hub) Send(c *Client, event string, payload interface{}) bool {
	raw, err := marshalEvent(event, payload)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[c] {
		return false
	}
	return h.send(c, raw)
}

// send hands raw bytes to a client's writer without blocking. A full
// send buffer drops the event for that recipient; the authoritative
// record is the store, so the client catches up on its next history
// fetch.
func (h *Hub) send(c *Client, raw []byte) bool {
	select {
	case c.send <- raw:
		metrics.EventsDelivered.Inc()
		return true
	default:
		metrics.DeliveriesDropped.Inc()
		log.Printf("dropping event for user %d: send buffer full", c.userID)
		return false
	}
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(Message{Type: event, Payload: payload})
	if err != nil {
		log.Printf("error marshaling %s event: %v", event, err)
		return nil, err
	}
	return raw, nil
}
