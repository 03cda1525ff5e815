package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/hub"
	"github.com/valyala/fasthttp"
)

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// The client declares its identity as ?token= or, when anonymous
// identities are accepted, ?userId=.
func (s *ChatServer) FastHTTPHandler() fasthttp.RequestHandler {
	socket := s.cfg.Socket
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  socket.ReadBufferSize,
		WriteBufferSize: socket.WriteBufferSize,
		CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
			return socket.OriginAllowed(string(ctx.Request.Header.Peek("Origin")))
		},
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		if limit := socket.MaxConnections; limit > 0 && s.hub.ClientCount() >= limit {
			s.logger.Warn().Int("max_connections", limit).Msg("connection limit reached, rejecting upgrade")
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"capacity","message":"too many connections"}`)
			return
		}

		args := ctx.QueryArgs()
		userID, err := s.identify(string(args.Peek("token")), string(args.Peek("userId")))
		if err != nil {
			s.logger.Debug().Err(err).Msg("handshake rejected")
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"error":"unauthorized","message":"valid token or userId required"}`)
			return
		}

		clientID := uuid.New().String()
		h := s.hub
		logger := s.logger

		err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			wrapped := newFasthttpConn(conn, socket.PingEvery(), socket.WriteDeadline())
			stop := wrapped.keepalive()
			defer stop()

			client := hub.NewClient(clientID, userID, wrapped, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn. Reads
// time out unless a pong arrives within two ping intervals.
type fasthttpConn struct {
	conn         *websocket.Conn
	pingInterval time.Duration
	writeTimeout time.Duration
}

func newFasthttpConn(conn *websocket.Conn, pingInterval, writeTimeout time.Duration) *fasthttpConn {
	f := &fasthttpConn{conn: conn, pingInterval: pingInterval, writeTimeout: writeTimeout}
	if pingInterval > 0 {
		f.extendRead()
		conn.SetPongHandler(func(string) error {
			f.extendRead()
			return nil
		})
	}
	return f
}

func (f *fasthttpConn) extendRead() {
	_ = f.conn.SetReadDeadline(time.Now().Add(2 * f.pingInterval))
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error         { return f.conn.Close() }

// keepalive pings the peer every interval until the returned stop is called.
func (f *fasthttpConn) keepalive() func() {
	if f.pingInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(f.pingInterval)
				if err := f.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
