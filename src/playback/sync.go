// Package playback relays shared music player actions within a room and
// models how each participant applies them.
//
// The server is a relay: it checks an action is well formed and that the
// sender belongs to the room, stamps a sequence number and hands the
// payload to the room's other members. It keeps no track, offset or play
// flag. Concurrent actions are not ordered; the last one delivered wins on
// every receiver, and receivers may drop anything older than the last
// sequence number they applied.
//
// The sequence number is the send time in Unix microseconds, bumped past
// the previous value of the room when the clock has not advanced. It keeps
// growing after a room empties and is rejoined, and stays comparable
// between instances sharing a bridge as long as their clocks agree more
// closely than actions are sent. Microseconds stay below 2^53, so
// JavaScript receivers compare them exactly.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Membership answers whether a connection joined a room.
type Membership interface {
	IsMember(connID, room string) bool
}

// RoomBroadcaster delivers a message to a room's members except one.
type RoomBroadcaster interface {
	BroadcastRoom(room, exceptConnID string, msg types.Message)
}

// Synchronizer validates and relays playback actions.
type Synchronizer struct {
	members Membership
	out     RoomBroadcaster
	logger  zerolog.Logger
	now     func() time.Time

	mu  sync.Mutex
	seq map[string]uint64
}

// NewSynchronizer creates a playback relay. now may be nil to use the wall
// clock.
func NewSynchronizer(members Membership, out RoomBroadcaster, now func() time.Time, logger zerolog.Logger) *Synchronizer {
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		members: members,
		out:     out,
		logger:  logger.With().Str("component", "playback").Logger(),
		now:     now,
		seq:     make(map[string]uint64),
	}
}

func validate(action types.PlaybackAction) error {
	if err := types.Required("roomId", action.RoomID); err != nil {
		return err
	}
	switch action.Action {
	case types.ActionPlay, types.ActionPause:
	default:
		return fmt.Errorf("%w: unknown action %q", types.ErrValidation, action.Action)
	}
	if action.CurrentTime < 0 {
		return fmt.Errorf("%w: currentTime must not be negative", types.ErrValidation)
	}
	return nil
}

// Handle relays an action from senderID to the other members of its room
// and returns the broadcast it sent.
func (s *Synchronizer) Handle(senderID string, action types.PlaybackAction) (types.PlaybackBroadcast, error) {
	if err := validate(action); err != nil {
		return types.PlaybackBroadcast{}, err
	}
	if !s.members.IsMember(senderID, action.RoomID) {
		return types.PlaybackBroadcast{}, fmt.Errorf("%w %s", types.ErrNotMember, action.RoomID)
	}

	out := types.PlaybackBroadcast{
		Action:      action.Action,
		SongURL:     action.SongURL,
		SongName:    action.SongName,
		CurrentTime: action.CurrentTime,
		Seq:         s.next(action.RoomID),
	}
	msg, err := types.NewMessage(types.EventMusicSync, out)
	if err != nil {
		return types.PlaybackBroadcast{}, err
	}
	msg.ClientID = senderID

	s.out.BroadcastRoom(action.RoomID, senderID, msg)
	s.logger.Debug().
		Str("room", action.RoomID).
		Str("client_id", senderID).
		Str("action", action.Action).
		Float64("current_time", action.CurrentTime).
		Uint64("seq", out.Seq).
		Msg("playback relayed")
	return out, nil
}

func (s *Synchronizer) next(room string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := uint64(s.now().UnixMicro())
	if last := s.seq[room]; seq <= last {
		seq = last + 1
	}
	s.seq[room] = seq
	return seq
}

// Forget drops the last sequence number of a room that no longer has
// members. Numbers issued afterwards still come from the clock, so they
// stay above anything the room saw before.
func (s *Synchronizer) Forget(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seq, room)
}
