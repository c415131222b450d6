package privatemsg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config configures the private message module.
type Config struct {
	DBPath    string
	Workers   int
	QueueSize int
	Debug     bool
}

// Module owns the private message store, its background task pool and
// the relay built on them.
type Module struct {
	cfg    Config
	relay  *Relay
	logger types.Logger

	db        *gorm.DB
	pool      *Pool
	closeOnce sync.Once
	closeErr  error
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the module. directory resolves online recipients and
// out delivers events to their connections.
func NewModule(cfg Config, directory Directory, out Sender, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		relay:  NewRelay(directory, out, logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "privatemsg"
}

// Relay returns the relay. It is usable before Start; persistence and
// history lookups fail with ErrStoreUnavailable until the store is open.
func (m *Module) Relay() *Relay {
	return m.relay
}

// Start opens the database, runs migrations and starts the task pool.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Connecting to SQLite database", "path", m.cfg.DBPath)

	db, err := openDB(m.cfg.DBPath, m.cfg.Debug)
	if err != nil {
		return err
	}
	m.db = db

	m.pool = NewPool(m.cfg.Workers, m.cfg.QueueSize, m.logger)
	if err := m.pool.Start(); err != nil {
		return fmt.Errorf("failed to start task pool: %w", err)
	}

	m.relay.attach(NewRepository(db), m.pool)
	m.logger.Info("Private message module started")
	return nil
}

// Stop closes the store.
func (m *Module) Stop(ctx context.Context) error {
	return m.Close(ctx)
}

// Close drains pending persistence tasks and closes the database. Only
// the first call does any work.
func (m *Module) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if m.db == nil {
			return
		}
		m.logger.Info("Closing private message store...")

		if err := m.pool.Stop(ctx); err != nil {
			m.logger.Warn("Task pool did not drain", "error", err)
		}
		m.relay.detach()

		sqlDB, err := m.db.DB()
		if err != nil {
			m.closeErr = fmt.Errorf("failed to get sql.DB: %w", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			m.closeErr = fmt.Errorf("failed to close database: %w", err)
			return
		}
		m.logger.Info("Private message store closed")
	})
	return m.closeErr
}

// Health pings the database and reports persistence counters.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	stats := m.relay.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":    "sqlite",
			"path":      m.cfg.DBPath,
			"pending":   m.pool.Pending(),
			"succeeded": stats.Succeeded,
			"failed":    stats.Failed,
			"pruned":    stats.Pruned,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
// Names are prefixed by the framework, e.g. "services.privatemsg.history".
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "history", json.Unmarshal, json.Marshal, m.handleHistory,
	); err != nil {
		return fmt.Errorf("failed to register history service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "recent-chats", json.Unmarshal, json.Marshal, m.handleRecentChats,
	); err != nil {
		return fmt.Errorf("failed to register recent-chats service: %w", err)
	}

	m.logger.Info("Registered private message services",
		"services", []string{"history", "recent-chats"})
	return nil
}

func (m *Module) handleHistory(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if req.UserA == "" || req.UserB == "" {
		return HistoryResponse{}, fmt.Errorf("userA and userB are required")
	}
	msgs, err := m.relay.History(ctx, req.UserA, req.UserB)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{UserA: req.UserA, UserB: req.UserB, Messages: msgs}, nil
}

func (m *Module) handleRecentChats(ctx context.Context, req RecentChatsRequest, _ *mono.Msg) (RecentChatsResponse, error) {
	if req.User == "" {
		return RecentChatsResponse{}, fmt.Errorf("user is required")
	}
	chats, err := m.relay.RecentChats(ctx, req.User)
	if err != nil {
		return RecentChatsResponse{}, err
	}
	return RecentChatsResponse{User: req.User, Chats: chats}, nil
}

// openDB opens the SQLite database and migrates the schema. SQLite allows
// one writer, so the pool is limited to a single connection.
func openDB(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&MessageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
