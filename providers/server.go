package providers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chatsync/config"
	"github.com/orchestra-mcp/chatsync/src/auth"
	"github.com/orchestra-mcp/chatsync/src/bridge"
	"github.com/orchestra-mcp/chatsync/src/hub"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/store"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// TokenVerifier resolves a handshake or bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// ChatServer wires the hub, service, store, bridge and HTTP surface together.
type ChatServer struct {
	active   bool
	cfg      config.AppConfig
	logger   zerolog.Logger
	store    *store.Store
	hub      *hub.Hub
	service  *service.Service
	bridge   bridge.Bridge
	verifier TokenVerifier
	app      *fiber.App
}

// NewChatServer creates a server for cfg. Nothing starts until Activate.
func NewChatServer(cfg config.AppConfig, logger zerolog.Logger) *ChatServer {
	return &ChatServer{cfg: cfg, logger: logger}
}

func (s *ChatServer) IsActive() bool { return s.active }

// Activate opens the store, starts the hub event loop, connects the bridge
// when enabled and builds the HTTP routes.
func (s *ChatServer) Activate() error {
	if s.active {
		return errors.New("chat server already active")
	}

	st, err := store.Open(s.cfg.DatabasePath, s.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st

	if s.cfg.AuthSigningSecret != "" {
		verifier, err := auth.NewVerifier(auth.Config{
			SigningSecret: []byte(s.cfg.AuthSigningSecret),
			Issuer:        s.cfg.AuthIssuer,
			TokenTTL:      s.cfg.AuthTokenTTL,
		})
		if err != nil {
			_ = st.Close()
			return fmt.Errorf("token verifier: %w", err)
		}
		s.verifier = verifier
	}

	s.hub = hub.New(s.logger, hub.WithReactionStore(st))
	s.service = service.New(s.hub, st, s.logger)
	s.hub.OnRoomClosed(func(room string) {
		s.logger.Debug().Str("room", room).Msg("playback state released")
	})

	go s.hub.Run()

	if s.cfg.RedisEnabled {
		// Attempt Redis bridge connection (non-fatal if unavailable).
		s.initBridge()
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "chatsync",
		ErrorHandler: errorHandler(s.logger),
	})
	s.RegisterRoutes(s.app)

	s.active = true
	s.logger.Info().
		Str("database", s.cfg.DatabasePath).
		Bool("auth", s.verifier != nil).
		Bool("bridge", s.bridge != nil).
		Bool("admin", s.cfg.AdminToken != "").
		Msg("chat server activated")
	return nil
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the hub runs in standalone mode.
func (s *ChatServer) initBridge() {
	cfg := bridge.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
		Prefix:   s.cfg.RedisPrefix,
	}.WithDefaults()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Deactivate stops the bridge, the hub event loop and the store.
func (s *ChatServer) Deactivate() error {
	var errs []error
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
			errs = append(errs, err)
		}
		s.bridge = nil
	}
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
		s.store = nil
	}
	s.active = false
	return errors.Join(errs...)
}

// Service exposes the realtime service.
func (s *ChatServer) Service() *service.Service { return s.service }

// App exposes the fiber application serving the HTTP routes.
func (s *ChatServer) App() *fiber.App { return s.app }

// Handler routes WebSocket upgrades at /ws to the socket handler and every
// other request to fiber. Fiber v3 does not expose *fasthttp.RequestCtx, so
// the upgrade has to sit in front of it.
func (s *ChatServer) Handler() fasthttp.RequestHandler {
	ws := s.FastHTTPHandler()
	app := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			ws(ctx)
			return
		}
		app(ctx)
	}
}
