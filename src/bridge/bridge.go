package bridge

import "github.com/orchestra-mcp/chatsync/src/types"

// Bridge defines the interface for cross-instance message delivery.
// Implementations relay addressed messages between server instances; each
// instance resolves the target against its own connections.
type Bridge interface {
	// Publish sends a message and its audience to all other instances.
	Publish(target types.Target, msg types.Message) error

	// Start begins listening for messages from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// LocalDeliverer is implemented by the Hub to receive messages from the bridge.
type LocalDeliverer interface {
	BroadcastToLocal(target types.Target, msg types.Message)
}
