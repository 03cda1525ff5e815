// Package rooms tracks which connections joined which conversation rooms.
package rooms

import "sort"

// Separator joins the two participant ids of a room key.
const Separator = "-"

// Key derives the room of a two-party conversation. Both participants get
// the same key regardless of argument order.
func Key(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}

// Manager holds room membership and the reverse index used for teardown.
// It is not safe for concurrent use.
type Manager struct {
	members map[string]map[string]struct{} // room -> connIDs
	byConn  map[string]map[string]struct{} // connID -> rooms
}

// NewManager creates an empty membership table.
func NewManager() *Manager {
	return &Manager{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to room. It reports false if it was already a member.
func (m *Manager) Join(connID, room string) bool {
	if connID == "" || room == "" {
		return false
	}
	subs := m.members[room]
	if subs == nil {
		subs = make(map[string]struct{})
		m.members[room] = subs
	}
	if _, ok := subs[connID]; ok {
		return false
	}
	subs[connID] = struct{}{}

	joined := m.byConn[connID]
	if joined == nil {
		joined = make(map[string]struct{})
		m.byConn[connID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes connID from room. Emptied rooms are dropped.
func (m *Manager) Leave(connID, room string) bool {
	subs, ok := m.members[room]
	if !ok {
		return false
	}
	if _, ok := subs[connID]; !ok {
		return false
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(m.members, room)
	}
	if joined := m.byConn[connID]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}
	return true
}

// RemoveConnection drops connID from every room it joined and returns the
// rooms that became empty.
func (m *Manager) RemoveConnection(connID string) (emptied []string) {
	joined := m.byConn[connID]
	delete(m.byConn, connID)
	for room := range joined {
		subs := m.members[room]
		delete(subs, connID)
		if len(subs) == 0 {
			delete(m.members, room)
			emptied = append(emptied, room)
		}
	}
	sort.Strings(emptied)
	return emptied
}

// IsMember reports whether connID joined room.
func (m *Manager) IsMember(connID, room string) bool {
	_, ok := m.members[room][connID]
	return ok
}

// Size reports the number of members of room.
func (m *Manager) Size(room string) int {
	return len(m.members[room])
}

// Members returns the connections of room, sorted.
func (m *Manager) Members(room string) []string {
	return sortedKeys(m.members[room])
}

// RoomsOf returns the rooms connID joined, sorted.
func (m *Manager) RoomsOf(connID string) []string {
	return sortedKeys(m.byConn[connID])
}

// Counts returns room names with their member counts.
func (m *Manager) Counts() map[string]int {
	out := make(map[string]int, len(m.members))
	for room, subs := range m.members {
		out[room] = len(subs)
	}
	return out
}

// Clear drops all rooms.
func (m *Manager) Clear() {
	clear(m.members)
	clear(m.byConn)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
