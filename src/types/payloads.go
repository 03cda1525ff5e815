package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// PresenceUpdate is the full set of online users, sent to every connection.
type PresenceUpdate struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

// RoomRequest names a room to join or leave. The browser client sends the
// room id as a bare JSON string; an object with roomId is accepted too.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// UnmarshalJSON accepts either "room" or {"roomId":"room"}.
func (r *RoomRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.RoomID)
	}
	type plain RoomRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RoomRequest(p)
	return nil
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// ReactionIntent is the transient reaction event emitted by a client ahead
// of (or instead of) the persisted round trip. A nil Emoji means removal.
type ReactionIntent struct {
	MessageID string     `json:"messageId"`
	UserID    string     `json:"userId,omitempty"`
	Emoji     *string    `json:"emoji"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// ReactionBroadcast is the full reaction mapping of a message after a
// persisted change. The transient path rebroadcasts the ReactionIntent
// itself under the same event name.
type ReactionBroadcast struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// Playback actions.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
)

// PlaybackAction is a room member's play/pause/seek/track change.
type PlaybackAction struct {
	RoomID      string  `json:"roomId"`
	Action      string  `json:"action"`
	SongURL     string  `json:"songUrl,omitempty"`
	SongName    string  `json:"songName,omitempty"`
	CurrentTime float64 `json:"currentTime"`
}

// PlaybackBroadcast carries everything a receiver needs to reproduce the
// sender's local state. Seq is the send time in Unix microseconds and
// increases within a room.
type PlaybackBroadcast struct {
	Action      string  `json:"action"`
	SongURL     string  `json:"songUrl,omitempty"`
	SongName    string  `json:"songName,omitempty"`
	CurrentTime float64 `json:"currentTime"`
	Seq         uint64  `json:"seq"`
}

// ChatMessage is the message record delivered to an online recipient.
type ChatMessage struct {
	ID         string     `json:"_id"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Text       string     `json:"text,omitempty"`
	Image      string     `json:"image,omitempty"`
	Video      string     `json:"video,omitempty"`
	Reactions  []Reaction `json:"reactions"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ErrorFrame reports a failed client event back to its originator only.
type ErrorFrame struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
