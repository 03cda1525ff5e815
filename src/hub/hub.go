package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/playback"
	"github.com/orchestra-mcp/chatsync/src/presence"
	"github.com/orchestra-mcp/chatsync/src/reaction"
	"github.com/orchestra-mcp/chatsync/src/registry"
	"github.com/orchestra-mcp/chatsync/src/rooms"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes messages to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(target types.Target, msg types.Message) error
	Available() bool
}

// Hub owns every live connection together with the user registry and room
// table. All mutations happen on the goroutine running Run, one event at a
// time; queries and outbound delivery may run on any goroutine.
type Hub struct {
	clients  map[string]*Client
	registry *registry.Registry
	rooms    *rooms.Manager

	presence  *presence.Announcer
	reactions *reaction.Synchronizer
	playback  *playback.Synchronizer

	register   chan *Client
	unregister chan *Client
	incoming   chan types.Message

	handlers     map[string]types.MessageHandler
	onConnect    []func(string)
	onDisconn    []func(string)
	onRoomClosed []func(string)

	bridge   MessageBridge
	mu       sync.RWMutex
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	reactionStore reaction.Store
	clock         func() time.Time
}

// WithReactionStore enables the persisted reaction path.
func WithReactionStore(store reaction.Store) Option {
	return func(o *options) { o.reactionStore = store }
}

// WithClock replaces the wall clock that stamps playback sequence numbers.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New creates a new Hub instance.
func New(logger zerolog.Logger, opts ...Option) *Hub {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		registry:   registry.New(),
		rooms:      rooms.NewManager(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan types.Message, 256),
		handlers:   make(map[string]types.MessageHandler),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}

	h.presence = presence.NewAnnouncer(lockedRegistry{h}, localBroadcaster{h}, logger)
	h.reactions = reaction.NewSynchronizer(o.reactionStore, h, logger)
	h.playback = playback.NewSynchronizer(h, h, o.clock, logger)

	h.handlers[types.EventJoinRoom] = h.handleJoin
	h.handlers[types.EventLeaveRoom] = h.handleLeave
	h.handlers[types.EventSendReaction] = h.handleReactionIntent
	h.handlers[types.EventMusicSync] = h.handleMusicSync
	h.handlers[types.EventPing] = h.handlePing
	return h
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, published messages are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// Reactions returns the reaction synchronizer shared by both reaction paths.
func (h *Hub) Reactions() *reaction.Synchronizer { return h.reactions }

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.incoming:
			h.handleMessage(msg)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop, closes every client and clears the
// registry and room table.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		clients := make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		clear(h.clients)
		h.registry.Clear()
		h.rooms.Clear()
		h.mu.Unlock()

		for _, c := range clients {
			c.Close()
		}
		h.logger.Info().Int("clients", len(clients)).Msg("hub stopped")
	})
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) enqueue(msg types.Message) bool {
	select {
	case h.incoming <- msg:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	superseded := h.registry.Connect(c.ID, c.UserID)
	h.mu.Unlock()

	log := h.logger.Info().Str("client_id", c.ID).Str("user_id", c.UserID)
	if superseded != "" {
		log = log.Str("superseded", superseded)
	}
	log.Msg("client registered")

	h.presence.Refresh()

	for _, cb := range h.onConnect {
		cb(c.ID)
	}
}

// removeClient tears a connection down in two steps: registry removal, then
// the room sweep through the connection's own room index.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	_, wasOnline := h.registry.Disconnect(c.ID)
	emptied := h.rooms.RemoveConnection(c.ID)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", c.UserID).
		Bool("was_online", wasOnline).
		Msg("client unregistered")

	for _, room := range emptied {
		h.closeRoom(room)
	}

	h.presence.Refresh()

	for _, cb := range h.onDisconn {
		cb(c.ID)
	}
}

func (h *Hub) closeRoom(room string) {
	h.playback.Forget(room)
	h.logger.Debug().Str("room", room).Msg("room closed")
	for _, cb := range h.onRoomClosed {
		cb(room)
	}
}

// lockedRegistry exposes the presence set under the hub's read lock.
type lockedRegistry struct{ h *Hub }

func (r lockedRegistry) Users() []string {
	r.h.mu.RLock()
	defer r.h.mu.RUnlock()
	return r.h.registry.Users()
}

// localBroadcaster delivers to this instance only. Presence is computed per
// instance, so it is never forwarded over the bridge.
type localBroadcaster struct{ h *Hub }

func (b localBroadcaster) BroadcastAll(msg types.Message) {
	b.h.deliver(types.All(), msg)
}
