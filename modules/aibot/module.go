package aibot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chat/events"
)

// ReplySink posts a bot reply into a room.
type ReplySink interface {
	PostAsBot(room, botName, text string)
}

// Module bridges room activity to an external AI service over the event
// bus. Joins and messages in rooms with a bot are published; replies are
// consumed and handed to the ReplySink.
type Module struct {
	roster   *Roster
	eventBus mono.EventBus
	logger   types.Logger
	now      func() time.Time

	mu   sync.RWMutex
	sink ReplySink
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the bridge for roster.
func NewModule(roster *Roster, logger types.Logger) *Module {
	return &Module{
		roster: roster,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "aibot"
}

// SetEventBus is called by the framework to inject the event bus.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module publishes.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserJoinedV1.ToBase(),
		events.MessagePostedV1.ToBase(),
		events.BotReplyV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to bot replies.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.BotReplyV1, m.handleBotReply, m); err != nil {
		return fmt.Errorf("failed to register BotReply consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", []string{"BotReply.v1"})
	return nil
}

// SetReplySink sets where bot replies are posted.
func (m *Module) SetReplySink(sink ReplySink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("AI bot bridge started", "bots", len(m.roster.All()))
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("AI bot bridge stopped")
	return nil
}

// Health reports the roster size.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"bots":      len(m.roster.All()),
			"event_bus": m.eventBus != nil,
		},
	}
}

// HandleUserJoin publishes a join event when room has a bot.
func (m *Module) HandleUserJoin(room, username string) {
	bot, ok := m.roster.ForRoom(room)
	if !ok || m.eventBus == nil {
		return
	}
	event := events.UserJoinedEvent{
		Room:     room,
		Username: username,
		BotName:  bot.Name,
		JoinedAt: m.now(),
	}
	if err := events.UserJoinedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Error("Failed to publish UserJoined event", "room", room, "error", err)
	}
}

// HandleMessage publishes a message event when room has a bot.
func (m *Module) HandleMessage(room, username, text string) {
	bot, ok := m.roster.ForRoom(room)
	if !ok || m.eventBus == nil {
		return
	}
	event := events.MessagePostedEvent{
		Room:     room,
		Username: username,
		BotName:  bot.Name,
		Text:     text,
		PostedAt: m.now(),
	}
	if err := events.MessagePostedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Error("Failed to publish MessagePosted event", "room", room, "error", err)
	}
}

// BotForRoom returns the bot assigned to room.
func (m *Module) BotForRoom(room string) (Bot, bool) {
	return m.roster.ForRoom(room)
}

// AllBots returns every configured bot.
func (m *Module) AllBots() []Bot {
	return m.roster.All()
}

// IsReservedName reports whether name is taken by a bot.
func (m *Module) IsReservedName(name string) bool {
	return m.roster.IsReserved(name)
}

func (m *Module) handleBotReply(_ context.Context, event events.BotReplyEvent, _ *mono.Msg) error {
	bot, ok := m.roster.ForRoom(event.Room)
	if !ok || bot.Name != event.BotName {
		m.logger.Warn("Ignoring reply from unknown bot", "room", event.Room, "bot", event.BotName)
		return nil
	}
	if event.Text == "" {
		return nil
	}

	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil {
		m.logger.Warn("No reply sink configured, dropping bot reply", "room", event.Room)
		return nil
	}
	sink.PostAsBot(event.Room, event.BotName, event.Text)
	return nil
}
