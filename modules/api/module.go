package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/lifecycle"
	"github.com/example/realtime-chat/modules/privatemsg"
)

// Config configures the HTTP and WebSocket transport.
type Config struct {
	Addr string
	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken  string
	CORSOrigins string
	// RateLimit and RateBurst bound inbound events per connection.
	RateLimit float64
	RateBurst int
}

// Connections is the hub surface used to attach sockets.
type Connections interface {
	Register(id string, conn broadcast.Conn)
	Unregister(id string)
	ClientCount() int
	RoomClientCount(room string) int
}

// Realtime is the dispatcher surface driven by the transport.
type Realtime interface {
	Handle(ctx context.Context, connID string, raw []byte) error
	Disconnect(connID string)
	SendSystem(connID, text string)
	RoomList() chat.RoomList
	RoomHistory(room string) []domain.Message
	UserList(room string) chat.UserList
	StreamingUsers() chat.StreamingUsers
	ClearRoom(room string) int
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	cfg       Config
	app       *fiber.App
	conns     Connections
	realtime  Realtime
	private   privatemsg.HistoryPort
	snapshots lifecycle.SnapshotPort
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg Config, conns Connections, realtime Realtime, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:      cfg,
		conns:    conns,
		realtime: realtime,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"privatemsg", "lifecycle"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "privatemsg":
		m.private = privatemsg.NewServiceAdapter(container)
	case "lifecycle":
		m.snapshots = lifecycle.NewServiceAdapter(container)
	}
}

// Start initializes and starts the Fiber server.
func (m *APIModule) Start(_ context.Context) error {
	if m.private == nil {
		return fmt.Errorf("privatemsg dependency not set")
	}
	if m.snapshots == nil {
		return fmt.Errorf("lifecycle dependency not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the Fiber server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr":              m.cfg.Addr,
			"connected_clients": m.conns.ClientCount(),
		},
	}
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Realtime Chat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
	}))

	origins := m.cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type," + adminTokenHeader,
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles errors globally.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
