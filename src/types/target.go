package types

// Scope selects the audience of an outbound message.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeRoom Scope = "room"
	ScopeUser Scope = "user"
)

// Target addresses an outbound message. Except skips one connection, used
// to keep a sender from receiving its own playback action.
type Target struct {
	Scope  Scope  `json:"scope"`
	Room   string `json:"room,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Except string `json:"except,omitempty"`
}

// All addresses every live connection.
func All() Target { return Target{Scope: ScopeAll} }

// Room addresses the members of room except one connection.
func Room(room, except string) Target {
	return Target{Scope: ScopeRoom, Room: room, Except: except}
}

// User addresses the live connection of a user.
func User(userID string) Target { return Target{Scope: ScopeUser, UserID: userID} }
