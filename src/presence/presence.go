// Package presence announces the set of online users to every connection.
package presence

import (
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Source yields the current presence set.
type Source interface {
	Users() []string
}

// Broadcaster delivers a message to every live connection.
type Broadcaster interface {
	BroadcastAll(msg types.Message)
}

// Announcer recomputes presence from its source after every registry
// change and sends the complete set; clients replace their local copy.
type Announcer struct {
	source Source
	out    Broadcaster
	logger zerolog.Logger
}

// NewAnnouncer creates a presence announcer.
func NewAnnouncer(source Source, out Broadcaster, logger zerolog.Logger) *Announcer {
	return &Announcer{
		source: source,
		out:    out,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// Snapshot returns the presence payload without sending it.
func (a *Announcer) Snapshot() types.PresenceUpdate {
	users := a.source.Users()
	if users == nil {
		users = []string{}
	}
	return types.PresenceUpdate{OnlineUserIDs: users}
}

// Refresh broadcasts the full presence set to all connections.
func (a *Announcer) Refresh() {
	update := a.Snapshot()
	msg, err := types.NewMessage(types.EventOnlineUsers, update)
	if err != nil {
		a.logger.Error().Err(err).Msg("encode presence")
		return
	}
	a.logger.Debug().Int("online", len(update.OnlineUserIDs)).Msg("presence refresh")
	a.out.BroadcastAll(msg)
}
