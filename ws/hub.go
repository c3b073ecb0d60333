package ws

import (
	"sync"

	"github.com/hbl306/phongtro57-chat/internal/logger"
)

// Room keys. A connection always sits in its user's inbox room; agent
// connections additionally sit in the shared agents room; conversation rooms
// are joined and left explicitly.
const agentsRoom = "agents"

func UserRoom(userID string) string {
	return "user:" + userID
}

func ConversationRoom(convID string) string {
	return "conv:" + convID
}

// Hub tracks which connections sit in which rooms and fans events out to
// them. All state is guarded by one RWMutex; no channels-of-channels, every
// operation is a short critical section.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	// per-room publish locks, see PublishOrdered
	ordMu  sync.Mutex
	orders map[string]*roomOrder
}

type roomOrder struct {
	mu   sync.Mutex
	refs int
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		orders: make(map[string]*roomOrder),
	}
}

// Join adds the client to a room. Joining twice is a no-op.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes the client from a room. Always succeeds, even if the client
// never joined. Other connections of the same user are unaffected.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
}

func (h *Hub) leaveLocked(room string, c *Client) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// RemoveClient drops the client from every room it is in. Called on
// disconnect so dead connections never leak room membership.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.leaveLocked(room, c)
	}
}

// PublishOrdered runs fn while holding the room's publish lock. A mutation
// and its broadcast execute as one unit: concurrent publishers for the same
// room are serialized, so every member observes events in the exact order
// their mutations were stored. The lock entry is dropped once no publisher
// holds or waits on it, so idle rooms cost nothing.
func (h *Hub) PublishOrdered(room string, fn func()) {
	h.ordMu.Lock()
	ord := h.orders[room]
	if ord == nil {
		ord = &roomOrder{}
		h.orders[room] = ord
	}
	ord.refs++
	h.ordMu.Unlock()

	ord.mu.Lock()
	fn()
	ord.mu.Unlock()

	h.ordMu.Lock()
	ord.refs--
	if ord.refs == 0 {
		delete(h.orders, room)
	}
	h.ordMu.Unlock()
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers a payload to every connection in the room. Delivery is
// at-most-once over the live connection: a slow client's payload is dropped
// and the client is scheduled for eviction rather than blocking the room.
func (h *Hub) Broadcast(room string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			logger.Warn("ws client send buffer full, evicting", "user_id", c.Identity.UserID)
			go c.Close()
		}
	}
}
