package providers

import (
	"github.com/orchestra-mcp/chatsync/src/auth"
	"github.com/orchestra-mcp/chatsync/src/bridge"
	"github.com/orchestra-mcp/chatsync/src/hub"
	"github.com/orchestra-mcp/chatsync/src/reaction"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/store"
	"github.com/orchestra-mcp/chatsync/src/types"
)

// Compile-time interface assertions.
var (
	_ types.Conn            = (*fasthttpConn)(nil)
	_ TokenVerifier         = (*auth.Verifier)(nil)
	_ reaction.Store        = (*store.Store)(nil)
	_ service.MessageStore  = (*store.Store)(nil)
	_ hub.MessageBridge     = (*bridge.RedisBridge)(nil)
	_ bridge.Bridge         = (*bridge.RedisBridge)(nil)
	_ bridge.LocalDeliverer = (*hub.Hub)(nil)
)
