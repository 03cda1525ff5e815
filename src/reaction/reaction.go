// Package reaction keeps a single emoji per user per message and pushes
// every change to all connections.
//
// Two entry points exist. Apply is the persisted path: it loads the
// message, rewrites its reaction mapping, saves it and broadcasts the full
// mapping. Relay is the transient path: it echoes a client's intent at once
// without touching storage, so the UI reacts before the round trip ends.
// The two are not reconciled here; whichever broadcast a client sees last
// wins.
//
// Broadcasts are unscoped: every online client receives every reaction
// update, including for conversations it is not part of.
package reaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Store is the persistence collaborator that owns message records.
type Store interface {
	// FindMessage returns the message or an error wrapping types.ErrNotFound.
	FindMessage(ctx context.Context, id string) (types.ChatMessage, error)
	// SaveReactions replaces the reaction mapping of a message.
	SaveReactions(ctx context.Context, id string, reactions []types.Reaction) error
}

// Broadcaster delivers a message to every live connection.
type Broadcaster interface {
	BroadcastAll(msg types.Message)
}

// Input is a persisted reaction request. Remove clears the user's reaction
// instead of setting Emoji.
type Input struct {
	MessageID string
	UserID    string
	Emoji     string
	Remove    bool
}

func (in Input) validate() error {
	if err := types.Required("messageId", in.MessageID); err != nil {
		return err
	}
	if err := types.Required("userId", in.UserID); err != nil {
		return err
	}
	if in.Remove {
		return nil
	}
	return types.Required("emoji", in.Emoji)
}

// Synchronizer applies and broadcasts reactions.
type Synchronizer struct {
	store  Store
	out    Broadcaster
	logger zerolog.Logger
}

// NewSynchronizer creates a reaction synchronizer. store may be nil, in
// which case only the transient path is available.
func NewSynchronizer(store Store, out Broadcaster, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		out:    out,
		logger: logger.With().Str("component", "reaction").Logger(),
	}
}

// Apply replaces the user's reaction on a message, saves it and broadcasts
// the resulting mapping.
func (s *Synchronizer) Apply(ctx context.Context, in Input) (types.ChatMessage, error) {
	if err := in.validate(); err != nil {
		return types.ChatMessage{}, err
	}
	if s.store == nil {
		return types.ChatMessage{}, errors.New("reaction store not configured")
	}

	msg, err := s.store.FindMessage(ctx, in.MessageID)
	if err != nil {
		return types.ChatMessage{}, err
	}

	emoji := in.Emoji
	if in.Remove {
		emoji = ""
	}
	msg.Reactions = Merge(msg.Reactions, in.UserID, emoji)

	if err := s.store.SaveReactions(ctx, msg.ID, msg.Reactions); err != nil {
		return types.ChatMessage{}, fmt.Errorf("save reactions for %s: %w", msg.ID, err)
	}

	s.broadcast(msg.ID, types.ReactionBroadcast{MessageID: msg.ID, Reactions: msg.Reactions})
	s.logger.Debug().
		Str("message_id", msg.ID).
		Str("user_id", in.UserID).
		Bool("removed", in.Remove).
		Msg("reaction saved")
	return msg, nil
}

// Relay re-broadcasts a client's reaction intent without persisting it.
func (s *Synchronizer) Relay(intent types.ReactionIntent) error {
	if err := types.Required("messageId", intent.MessageID); err != nil {
		return err
	}
	if intent.UserID == "" && intent.Reactions == nil {
		return fmt.Errorf("%w: userId or reactions is required", types.ErrValidation)
	}
	s.broadcast(intent.MessageID, intent)
	return nil
}

func (s *Synchronizer) broadcast(messageID string, payload any) {
	msg, err := types.NewMessage(types.EventMessageReaction, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID).Msg("encode reaction")
		return
	}
	s.out.BroadcastAll(msg)
}

// Merge drops any reaction of userID and, unless emoji is empty, appends the
// new one. The result never holds two entries for the same user.
func Merge(reactions []types.Reaction, userID, emoji string) []types.Reaction {
	out := make([]types.Reaction, 0, len(reactions)+1)
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	if emoji != "" {
		out = append(out, types.Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}
