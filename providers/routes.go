package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/orchestra-mcp/chatsync/src/reaction"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// RegisterRoutes registers the HTTP routes via Fiber. The WebSocket
// upgrade itself is served by FastHTTPHandler, see Handler.
func (s *ChatServer) RegisterRoutes(app *fiber.App) {
	app.Use(recoverer.New())
	if origins := s.cfg.Socket.AllowedOrigins; len(origins) > 0 {
		app.Use(cors.New(cors.Config{AllowOrigins: origins}))
	} else {
		app.Use(cors.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/ws/info", s.handleInfo)

	api := app.Group("/api")
	api.Get("/presence", s.handlePresence)
	api.Get("/messages/:id", s.handleConversation)
	api.Post("/messages/send/:id", s.handleSend)
	api.Post("/messages/reaction/:id", s.handleReaction)
	s.registerAdminRoutes(api.Group("/admin"))
}

func (s *ChatServer) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *ChatServer) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.hub.ClientCount(),
		"rooms":     len(s.hub.Rooms()),
		"bridge":    s.bridge != nil && s.bridge.Available(),
	})
}

func (s *ChatServer) handlePresence(c fiber.Ctx) error {
	return c.JSON(types.PresenceUpdate{OnlineUserIDs: s.service.GetOnlineUsers()})
}

func (s *ChatServer) handleConversation(c fiber.Ctx) error {
	userID, err := s.identifyRequest(c)
	if err != nil {
		return err
	}
	messages, err := s.store.Conversation(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(messages)
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Video string `json:"video"`
}

func (s *ChatServer) handleSend(c fiber.Ctx) error {
	senderID, err := s.identifyRequest(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	saved, pushed, err := s.service.DeliverMessage(c.Context(), types.ChatMessage{
		SenderID:   senderID,
		ReceiverID: c.Params("id"),
		Text:       req.Text,
		Image:      req.Image,
		Video:      req.Video,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   saved,
		"delivered": pushed,
	})
}

// reactionRequest mirrors the socket reaction intent: a null or absent
// emoji removes the caller's reaction, as does remove.
type reactionRequest struct {
	Emoji  *string `json:"emoji"`
	Remove bool    `json:"remove"`
}

func (s *ChatServer) handleReaction(c fiber.Ctx) error {
	userID, err := s.identifyRequest(c)
	if err != nil {
		return err
	}
	var req reactionRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	in := reaction.Input{
		MessageID: c.Params("id"),
		UserID:    userID,
		Remove:    req.Remove || req.Emoji == nil,
	}
	if req.Emoji != nil {
		in.Emoji = *req.Emoji
	}
	msg, err := s.service.AddReaction(c.Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

// identifyRequest resolves the caller from a bearer token, or from the
// X-User-ID header when anonymous identities are accepted.
func (s *ChatServer) identifyRequest(c fiber.Ctx) (string, error) {
	token := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
	userID, err := s.identify(token, c.Get("X-User-ID"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	return userID, nil
}

// identify turns handshake credentials into a user id. A token always wins;
// a bare user id is only trusted without a verifier or in anonymous mode.
func (s *ChatServer) identify(token, userID string) (string, error) {
	if token != "" && s.verifier != nil {
		return s.verifier.VerifyToken(token)
	}
	if s.verifier != nil && !s.cfg.AllowAnonymous {
		return "", fmt.Errorf("%w: token required", types.ErrValidation)
	}
	userID = strings.TrimSpace(userID)
	if err := types.Required("userId", userID); err != nil {
		return "", err
	}
	return userID, nil
}

func decodeBody(c fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", types.ErrValidation, err)
	}
	return nil
}

// errorHandler maps domain errors to HTTP statuses and a JSON error body.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := types.ErrorCode(err)

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			status = fe.Code
			code = "http"
			switch fe.Code {
			case fiber.StatusUnauthorized:
				code = "unauthorized"
			case fiber.StatusForbidden:
				code = "forbidden"
			}
		case code == types.CodeValidation:
			status = fiber.StatusBadRequest
		case code == types.CodeNotFound:
			status = fiber.StatusNotFound
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   code,
			"message": err.Error(),
		})
	}
}
