package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/lifecycle"
)

const adminTokenHeader = "X-Admin-Token"

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))

	// REST API v1
	v1 := app.Group("/api/v1")
	v1.Get("/rooms", m.listRooms)
	v1.Get("/rooms/:room/history", m.getRoomHistory)
	v1.Get("/rooms/:room/users", m.getRoomUsers)
	v1.Get("/streaming", m.getStreaming)
	v1.Get("/private/history", m.getPrivateHistory)
	v1.Get("/private/recent/:user", m.getRecentChats)

	// Administrative triggers
	admin := app.Group("/admin", m.requireAdmin)
	admin.Post("/snapshot", m.triggerSnapshot)
	admin.Post("/rooms/:room/clear", m.clearRoom)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.conns.ClientCount(),
			"rooms":             len(m.realtime.RoomList().Rooms),
			"streaming":         len(m.realtime.StreamingUsers().StreamingUsers),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	return c.JSON(m.realtime.RoomList())
}

// getRoomHistory handles GET /api/v1/rooms/:room/history.
func (m *APIModule) getRoomHistory(c *fiber.Ctx) error {
	room := strings.TrimSpace(c.Params("room"))
	if room == "" {
		return badRequest(c, "Room is required")
	}
	return c.JSON(RoomHistoryResponse{
		Room:     room,
		Messages: m.realtime.RoomHistory(room),
	})
}

// getRoomUsers handles GET /api/v1/rooms/:room/users.
func (m *APIModule) getRoomUsers(c *fiber.Ctx) error {
	room := strings.TrimSpace(c.Params("room"))
	if room == "" {
		return badRequest(c, "Room is required")
	}
	return c.JSON(RoomUsersResponse{
		Room:  room,
		Users: m.realtime.UserList(room).Users,
	})
}

// getStreaming handles GET /api/v1/streaming.
func (m *APIModule) getStreaming(c *fiber.Ctx) error {
	return c.JSON(m.realtime.StreamingUsers())
}

// getPrivateHistory handles GET /api/v1/private/history?userA=&userB=.
func (m *APIModule) getPrivateHistory(c *fiber.Ctx) error {
	userA, userB := c.Query("userA"), c.Query("userB")
	if userA == "" || userB == "" {
		return badRequest(c, "userA and userB are required")
	}

	resp, err := m.private.History(c.UserContext(), userA, userB)
	if err != nil {
		m.logger.Error("Private history request failed", "userA", userA, "userB", userB, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "history_unavailable",
			Message: "Private history is unavailable",
		})
	}
	if resp.Messages == nil {
		resp.Messages = []domain.PrivateMessage{}
	}
	return c.JSON(resp)
}

// getRecentChats handles GET /api/v1/private/recent/:user.
func (m *APIModule) getRecentChats(c *fiber.Ctx) error {
	user := strings.TrimSpace(c.Params("user"))
	if user == "" {
		return badRequest(c, "User is required")
	}

	resp, err := m.private.RecentChats(c.UserContext(), user)
	if err != nil {
		m.logger.Error("Recent chats request failed", "user", user, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "recent_chats_unavailable",
			Message: "Recent chats are unavailable",
		})
	}
	if resp.Chats == nil {
		resp.Chats = []domain.RecentChat{}
	}
	return c.JSON(resp)
}

// requireAdmin rejects requests without the configured admin token.
func (m *APIModule) requireAdmin(c *fiber.Ctx) error {
	if m.cfg.AdminToken == "" {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "admin_disabled",
			Message: "Admin endpoints are disabled",
		})
	}
	token := c.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.cfg.AdminToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid admin token",
		})
	}
	return c.Next()
}

// triggerSnapshot handles POST /admin/snapshot.
func (m *APIModule) triggerSnapshot(c *fiber.Ctx) error {
	resp, err := m.snapshots.Snapshot(c.UserContext(), lifecycle.ReasonManual)
	if err != nil {
		m.logger.Error("Snapshot request failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "snapshot_unavailable",
			Message: "Snapshot service is unavailable",
		})
	}
	if resp.Error != "" {
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
	return c.JSON(resp)
}

// clearRoom handles POST /admin/rooms/:room/clear.
func (m *APIModule) clearRoom(c *fiber.Ctx) error {
	room := strings.TrimSpace(c.Params("room"))
	if room == "" {
		return badRequest(c, "Room is required")
	}
	n := m.realtime.ClearRoom(room)
	return c.JSON(ClearRoomResponse{Room: room, Cleared: n})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}
