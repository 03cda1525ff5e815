package hub

import (
	"sort"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// RegisterHandler registers a handler for an inbound event, replacing the
// built-in one if present.
func (h *Hub) RegisterHandler(event string, handler types.MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = handler
}

// OnConnection registers a callback for new connections.
func (h *Hub) OnConnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections.
func (h *Hub) OnDisconnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

// OnRoomClosed registers a callback for rooms whose last member left.
func (h *Hub) OnRoomClosed(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRoomClosed = append(h.onRoomClosed, cb)
}

// ConnectedClients returns a sorted list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnlineUsers returns the presence set.
func (h *Hub) OnlineUsers() []string {
	return lockedRegistry{h}.Users()
}

// Lookup returns the live connection of a user.
func (h *Hub) Lookup(userID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.Lookup(userID)
}

// IsMember reports whether a connection joined room.
func (h *Hub) IsMember(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.IsMember(clientID, room)
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	if !ok {
		return nil
	}
	return &types.ClientInfo{
		ID:          client.ID,
		UserID:      client.UserID,
		ConnectedAt: client.connectedAt,
		Rooms:       h.rooms.RoomsOf(clientID),
	}
}

// Rooms returns room names with their member counts.
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.Counts()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
