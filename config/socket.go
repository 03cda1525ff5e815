package config

import "time"

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int      `json:"max_connections"`
	PingInterval    int      `json:"ping_interval_seconds"`
	WriteTimeout    int      `json:"write_timeout_seconds"`
	ReadBufferSize  int      `json:"read_buffer_size"`
	WriteBufferSize int      `json:"write_buffer_size"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// PingEvery returns the keepalive interval as a duration.
func (c *SocketConfig) PingEvery() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// WriteDeadline returns the per-frame write timeout as a duration.
func (c *SocketConfig) WriteDeadline() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// OriginAllowed reports whether a handshake Origin may connect. An empty
// allow list or a "*" entry admits every origin.
func (c *SocketConfig) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
