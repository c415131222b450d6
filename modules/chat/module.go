package chat

import (
	"context"

	"github.com/go-monolith/mono"
)

// Compile-time interface checks
var (
	_ mono.Module                = (*Dispatcher)(nil)
	_ mono.HealthCheckableModule = (*Dispatcher)(nil)
)

// Name returns the module name.
func (d *Dispatcher) Name() string {
	return "chat"
}

// Start starts the module.
func (d *Dispatcher) Start(_ context.Context) error {
	d.logger.Info("Chat dispatcher started", "admin", d.cfg.AdminName)
	return nil
}

// Stop stops the module.
func (d *Dispatcher) Stop(_ context.Context) error {
	d.logger.Info("Chat dispatcher stopped", "connections", d.presence.Count())
	return nil
}

// Health reports presence and history sizes.
func (d *Dispatcher) Health(_ context.Context) mono.HealthStatus {
	rooms, messages := d.history.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":     d.presence.Count(),
			"active_rooms":    len(d.presence.DistinctRooms()),
			"history_rooms":   rooms,
			"cached_messages": messages,
			"streaming":       len(d.streaming.List()),
		},
	}
}
