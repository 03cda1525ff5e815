// Package registry maps user identities to their single live connection.
package registry

import "sort"

// Registry tracks which connection currently speaks for each user. Only the
// most recent connection of a user is kept; there is no multi-device
// fan-out. A Registry is not safe for concurrent use; the hub owns it and
// mutates it from its event loop only.
type Registry struct {
	byUser map[string]string // userID -> connID
	byConn map[string]string // connID -> userID, superseded connections included
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Connect registers connID as the live connection of userID. If the user
// already had a different connection it is overwritten and returned.
func (r *Registry) Connect(connID, userID string) (previous string) {
	if connID == "" || userID == "" {
		return ""
	}
	previous = r.byUser[userID]
	if previous == connID {
		previous = ""
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
	return previous
}

// Disconnect forgets connID. The user mapping is removed only while it still
// points at connID, so a late disconnect of a superseded connection cannot
// erase the registration of a newer one.
func (r *Registry) Disconnect(connID string) (userID string, removed bool) {
	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if r.byUser[userID] != connID {
		return userID, false
	}
	delete(r.byUser, userID)
	return userID, true
}

// Lookup returns the live connection of userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	connID, ok := r.byUser[userID]
	return connID, ok
}

// UserOf returns the user a connection declared, superseded or not.
func (r *Registry) UserOf(connID string) (string, bool) {
	userID, ok := r.byConn[connID]
	return userID, ok
}

// Users returns the presence set, sorted.
func (r *Registry) Users() []string {
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Len reports the number of online users.
func (r *Registry) Len() int {
	return len(r.byUser)
}

// Clear drops every mapping.
func (r *Registry) Clear() {
	clear(r.byUser)
	clear(r.byConn)
}
