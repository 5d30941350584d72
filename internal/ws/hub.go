package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub owns the connection set and room membership. Rooms are broadcast
// groups: each tracked connection sits in its user's private room and the
// global room, plus one room per conversation it has opened. Membership is
// cleaned up implicitly when the connection unregisters; there is no explicit
// leave.
//
// All state is process-local and guarded by one RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[Conn]struct{}
	rooms   map[string]map[Conn]struct{}
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[Conn]struct{}),
		rooms:   make(map[string]map[Conn]struct{}),
		log:     logger,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes a connection and sweeps it from every room it joined.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Join adds a connection to a room, creating the room if needed.
func (h *Hub) Join(c Conn, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Emit sends an event to every connection in a room.
func (h *Hub) Emit(room, event string, data any) {
	h.EmitExcept(room, event, data, nil)
}

// EmitExcept sends an event to every connection in a room except one.
// Slow consumers are skipped rather than blocking the fan-out.
func (h *Hub) EmitExcept(room, event string, data any, except Conn) {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.Emit(event, data); err != nil {
			h.log.Warn().Err(err).Str("event", event).Str("room", room).
				Str("conn", c.ID()).Msg("emit failed")
		}
	}
}

// UserInRoom reports whether any connection belonging to the user is a
// member of the room. The message pipeline uses this to decide whether a
// recipient needs a notification or is already watching the conversation.
func (h *Hub) UserInRoom(room, userID string) bool {
	if userID == "" {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
