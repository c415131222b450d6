package broadcast

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module runs the Hub for the lifetime of the application.
type Module struct {
	hub    *Hub
	cancel context.CancelFunc
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a broadcast module around hub.
func NewModule(hub *Hub, logger types.Logger) *Module {
	return &Module{hub: hub, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Hub returns the hub.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Start launches the hub.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.hub.Run(ctx)

	m.logger.Info("Broadcast hub started")
	return nil
}

// Stop closes every client and waits for the hub to finish.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.hub.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Broadcast hub stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports connection counts.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"clients": m.hub.ClientCount(),
		},
	}
}
