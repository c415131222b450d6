package api

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/realtime-chat/modules/chat"
)

// maxFrameBytes bounds a single inbound frame. Image and voice payloads
// arrive inline as data URIs.
const maxFrameBytes = 8 << 20

// handleWebSocket handles WebSocket connections at /ws. Frames from one
// connection are dispatched in arrival order on this goroutine.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	connID := uuid.NewString()
	limiter := rate.NewLimiter(rate.Limit(m.cfg.RateLimit), m.cfg.RateBurst)

	c.SetReadLimit(maxFrameBytes)
	m.conns.Register(connID, c)
	defer func() {
		// The hub must forget the socket before the departure is broadcast.
		m.conns.Unregister(connID)
		m.realtime.Disconnect(connID)
		m.logger.Info("WebSocket disconnected", "connID", connID)
	}()

	m.logger.Info("WebSocket connected", "connID", connID, "remote", c.RemoteAddr().String())

	for {
		msgType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read error", "connID", connID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow() {
			m.realtime.SendSystem(connID, "Rate limit exceeded, please slow down.")
			continue
		}

		if err := m.realtime.Handle(context.Background(), connID, raw); err != nil {
			m.logger.Warn("Rejected frame", "connID", connID, "error", err)
			switch {
			case errors.Is(err, chat.ErrUnknownEvent):
				m.realtime.SendSystem(connID, "Unknown event.")
			default:
				m.realtime.SendSystem(connID, "Malformed event.")
			}
		}
	}
}
