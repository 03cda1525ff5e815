package providers

import (
	"crypto/subtle"
	"encoding/json"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chatsync/src/types"
)

// adminTokenHeader carries the operator credential. A user's bearer token
// is not accepted here.
const adminTokenHeader = "X-Admin-Token"

// registerAdminRoutes exposes operator introspection of the hub. The routes
// exist only when an admin token is configured, and every request must
// present it.
func (s *ChatServer) registerAdminRoutes(group fiber.Router) {
	if s.cfg.AdminToken == "" {
		return
	}
	group.Use(s.requireAdmin)
	group.Get("/clients", s.adminListClients)
	group.Get("/rooms", s.adminListRooms)
	group.Post("/users/:id/notify", s.adminNotifyUser)
}

func (s *ChatServer) requireAdmin(c fiber.Ctx) error {
	presented := strings.TrimSpace(c.Get(adminTokenHeader))
	if presented == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "admin token required")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.AdminToken)) != 1 {
		return fiber.NewError(fiber.StatusForbidden, "admin token rejected")
	}
	return c.Next()
}

func (s *ChatServer) adminListClients(c fiber.Ctx) error {
	clients := s.service.GetConnectedClients()
	infos := make([]*types.ClientInfo, 0, len(clients))
	for _, id := range clients {
		info, err := s.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, info)
		}
	}
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (s *ChatServer) adminListRooms(c fiber.Ctx) error {
	rooms := s.service.GetRooms()
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]fiber.Map, 0, len(names))
	for _, name := range names {
		result = append(result, fiber.Map{
			"room":    name,
			"members": rooms[name],
		})
	}
	return c.JSON(fiber.Map{"rooms": result, "count": len(result)})
}

type notifyRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *ChatServer) adminNotifyUser(c fiber.Ctx) error {
	var req notifyRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if err := types.Required("event", req.Event); err != nil {
		return err
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	userID := c.Params("id")
	if err := s.service.SendToUser(userID, req.Event, data); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sent": true, "userId": userID})
}
