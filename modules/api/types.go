package api

import (
	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/chat"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// RoomHistoryResponse is returned by GET /api/v1/rooms/:room/history.
type RoomHistoryResponse struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// RoomUsersResponse is returned by GET /api/v1/rooms/:room/users.
type RoomUsersResponse struct {
	Room  string          `json:"room"`
	Users []chat.UserView `json:"users"`
}

// ClearRoomResponse is returned by POST /admin/rooms/:room/clear.
type ClearRoomResponse struct {
	Room    string `json:"room"`
	Cleared int    `json:"cleared"`
}
