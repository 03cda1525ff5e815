package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// sendBuffer is the number of outbound messages queued per client before
// further messages are dropped.
const sendBuffer = 256

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID          string
	UserID      string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Message
	connectedAt time.Time
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new WebSocket client wrapper. userID is the identity
// declared in the handshake and may be empty.
func NewClient(id, userID string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Message, sendBuffer),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// deliver queues msg without blocking. It reports false when the client is
// closed or its buffer is full; the message is dropped either way.
func (c *Client) deliver(msg types.Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump reads messages from the WebSocket and routes to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var msg types.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		msg.ClientID = c.ID
		msg.Timestamp = time.Now()
		if !c.hub.enqueue(msg) {
			return
		}
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
