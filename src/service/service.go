package service

import (
	"context"
	"fmt"

	"github.com/orchestra-mcp/chatsync/src/hub"
	"github.com/orchestra-mcp/chatsync/src/reaction"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// MessageStore persists new chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error)
}

// Service provides the high-level realtime API used by HTTP handlers.
type Service struct {
	hub      *hub.Hub
	messages MessageStore
	logger   zerolog.Logger
}

// New creates a new realtime service backed by the given hub. messages may
// be nil when message delivery is handled elsewhere.
func New(h *hub.Hub, messages MessageStore, logger zerolog.Logger) *Service {
	return &Service{hub: h, messages: messages, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// RegisterHandler registers a handler for an inbound event.
func (s *Service) RegisterHandler(event string, handler types.MessageHandler) {
	s.hub.RegisterHandler(event, handler)
	s.logger.Debug().Str("event", event).Msg("handler registered")
}

// AddReaction is the persisted reaction path: the store round trip runs on
// the caller's goroutine and only the resulting broadcast touches the hub.
func (s *Service) AddReaction(ctx context.Context, in reaction.Input) (types.ChatMessage, error) {
	return s.hub.Reactions().Apply(ctx, in)
}

// DeliverMessage stores a new message and pushes it to its recipient if the
// recipient is online. It reports whether the push was accepted locally.
func (s *Service) DeliverMessage(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, bool, error) {
	if err := types.Required("senderId", msg.SenderID); err != nil {
		return types.ChatMessage{}, false, err
	}
	if err := types.Required("receiverId", msg.ReceiverID); err != nil {
		return types.ChatMessage{}, false, err
	}
	if msg.Text == "" && msg.Image == "" && msg.Video == "" {
		return types.ChatMessage{}, false, fmt.Errorf("%w: text, image or video is required", types.ErrValidation)
	}
	if s.messages == nil {
		return types.ChatMessage{}, false, fmt.Errorf("message store not configured")
	}

	saved, err := s.messages.CreateMessage(ctx, msg)
	if err != nil {
		return types.ChatMessage{}, false, fmt.Errorf("create message: %w", err)
	}

	frame, err := types.NewMessage(types.EventNewMessage, saved)
	if err != nil {
		return saved, false, err
	}
	pushed := s.hub.SendToUser(saved.ReceiverID, frame)
	s.logger.Debug().
		Str("message_id", saved.ID).
		Str("receiver_id", saved.ReceiverID).
		Bool("pushed", pushed).
		Msg("message delivered")
	return saved, pushed, nil
}

// SendToUser sends an event directly to a user's live connection.
func (s *Service) SendToUser(userID, event string, data any) error {
	msg, err := types.NewMessage(event, data)
	if err != nil {
		return err
	}
	if ok := s.hub.SendToUser(userID, msg); !ok {
		return fmt.Errorf("%w: user %s not connected", types.ErrTransport, userID)
	}
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetOnlineUsers returns the presence set.
func (s *Service) GetOnlineUsers() []string {
	return s.hub.OnlineUsers()
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetRooms returns active rooms with member counts.
func (s *Service) GetRooms() map[string]int {
	return s.hub.Rooms()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s: %w", clientID, types.ErrNotFound)
	}
	return info, nil
}
