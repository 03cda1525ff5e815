package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names on the wire. They match what the chat frontend already emits
// and listens for.
const (
	EventOnlineUsers     = "getOnlineUsers"
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventSendReaction    = "sendReaction"
	EventMessageReaction = "messageReaction"
	EventMusicSync       = "music-sync"
	EventNewMessage      = "newMessage"
	EventError           = "error"
	EventPing            = "ping"
	EventPong            = "pong"
)

// Message is a WebSocket message.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage encodes payload as the data of a new message for event.
func NewMessage(event string, payload any) (Message, error) {
	msg := Message{Event: event, Timestamp: time.Now()}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg.Data = data
	return msg, nil
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s payload is empty", ErrValidation, m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
	}
	return nil
}

// MessageHandler handles an inbound event from a client.
type MessageHandler func(clientID string, msg Message) error

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
