package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/history"
)

// Snapshot reasons.
const (
	ReasonShutdown = "shutdown"
	ReasonManual   = "manual"
	ReasonPeriodic = "periodic"
)

// Config configures the Manager.
type Config struct {
	// Path is the fixed snapshot location, overwritten on every snapshot
	// and consumed on boot.
	Path string
	// AuditDir receives a timestamped copy for shutdown and manual snapshots.
	AuditDir string
	// Interval enables periodic snapshots to Path. Zero disables them.
	Interval time.Duration
}

// Result describes one completed snapshot.
type Result struct {
	Reason   string   `json:"reason"`
	Rooms    int      `json:"rooms"`
	Messages int      `json:"messages"`
	Paths    []string `json:"paths"`
}

type shutdownStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager restores the history cache on boot and snapshots it on
// shutdown, on demand and periodically.
type Manager struct {
	cache  *history.Cache
	cfg    Config
	logger types.Logger
	now    func() time.Time

	flight       singleflight.Group
	shuttingDown atomic.Bool

	// captureMu orders cache captures; generation increases with each.
	captureMu  sync.Mutex
	generation uint64

	// fixedMu serialises writes to cfg.Path; fixedGen is the generation
	// currently on disk.
	fixedMu  sync.Mutex
	fixedGen uint64

	stepsMu sync.Mutex
	steps   []shutdownStep

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Manager)(nil)
	_ mono.HealthCheckableModule = (*Manager)(nil)
	_ mono.ServiceProviderModule = (*Manager)(nil)
)

// NewManager creates a lifecycle manager for cache.
func NewManager(cache *history.Cache, cfg Config, logger types.Logger) *Manager {
	return &Manager{
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the module name.
func (m *Manager) Name() string {
	return "lifecycle"
}

// Start restores the cache from the fixed snapshot and starts the
// periodic snapshot loop.
func (m *Manager) Start(_ context.Context) error {
	m.Restore()

	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	if m.cfg.Interval > 0 {
		go m.run()
	} else {
		close(m.doneChan)
	}

	m.logger.Info("Lifecycle manager started",
		"snapshotPath", m.cfg.Path,
		"auditDir", m.cfg.AuditDir,
		"interval", m.cfg.Interval)
	return nil
}

// Stop halts the periodic snapshot loop.
func (m *Manager) Stop(ctx context.Context) error {
	if m.stopChan == nil {
		return nil
	}
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
		m.logger.Info("Lifecycle manager stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Health reports the cache size and whether shutdown has begun.
func (m *Manager) Health(_ context.Context) mono.HealthStatus {
	rooms, messages := m.cache.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms":         rooms,
			"messages":      messages,
			"snapshot_path": m.cfg.Path,
			"shutting_down": m.shuttingDown.Load(),
		},
	}
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if _, err := m.Snapshot(context.Background(), ReasonPeriodic); err != nil {
				m.logger.Error("Periodic snapshot failed", "error", err)
			}
		}
	}
}

// Restore loads the fixed snapshot into the cache and deletes the file.
// A missing file is not an error; an unreadable or unparsable file leaves
// the cache empty and the file in place.
func (m *Manager) Restore() {
	data, err := os.ReadFile(m.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Info("No snapshot to restore", "path", m.cfg.Path)
		return
	}
	if err != nil {
		m.logger.Error("Failed to read snapshot, starting empty", "path", m.cfg.Path, "error", err)
		return
	}

	rooms, skipped, err := decodeSnapshot(data)
	if err != nil {
		m.logger.Error("Failed to parse snapshot, starting empty", "path", m.cfg.Path, "error", err)
		return
	}
	if skipped > 0 {
		m.logger.Warn("Skipped invalid snapshot records", "count", skipped)
	}

	m.cache.Restore(rooms)
	roomCount, messages := m.cache.Stats()
	m.logger.Info("Restored history snapshot", "rooms", roomCount, "messages", messages)

	if err := os.Remove(m.cfg.Path); err != nil {
		m.logger.Error("Failed to remove restored snapshot", "path", m.cfg.Path, "error", err)
	}
}

// Snapshot writes the cache to the fixed path and, unless reason is
// ReasonPeriodic, to a timestamped audit file. Both writes are attempted;
// the returned error joins the failures. Concurrent manual or periodic
// calls with the same reason share one write. A shutdown snapshot always
// captures the cache itself. The fixed file never goes back to an older
// capture than the one it holds.
func (m *Manager) Snapshot(ctx context.Context, reason string) (Result, error) {
	audit := reason != ReasonPeriodic
	if reason == ReasonShutdown {
		return m.write(ctx, reason, audit)
	}

	v, err, _ := m.flight.Do(reason, func() (any, error) {
		return m.write(ctx, reason, audit)
	})
	res, _ := v.(Result)
	return res, err
}

// capture copies the cache and tags the copy with a new generation.
func (m *Manager) capture() (uint64, map[string][]chat.Message) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	m.generation++
	return m.generation, m.cache.Snapshot()
}

// writeFixed replaces the fixed snapshot unless a newer capture is already
// on disk. It reports whether the file was written.
func (m *Manager) writeFixed(gen uint64, data []byte) (bool, error) {
	m.fixedMu.Lock()
	defer m.fixedMu.Unlock()
	if gen < m.fixedGen {
		m.logger.Debug("Skipping stale snapshot", "generation", gen, "onDisk", m.fixedGen)
		return false, nil
	}
	if err := writeFileAtomic(m.cfg.Path, data); err != nil {
		return false, err
	}
	m.fixedGen = gen
	return true, nil
}

func (m *Manager) write(ctx context.Context, reason string, audit bool) (Result, error) {
	gen, snap := m.capture()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	res := Result{Reason: reason, Rooms: len(snap)}
	for _, msgs := range snap {
		res.Messages += len(msgs)
	}

	type target struct {
		path  string
		write func() (bool, error)
	}
	targets := []target{{
		path:  m.cfg.Path,
		write: func() (bool, error) { return m.writeFixed(gen, data) },
	}}
	if audit {
		path := m.auditPath()
		targets = append(targets, target{
			path: path,
			write: func() (bool, error) {
				if err := writeFileAtomic(path, data); err != nil {
					return false, err
				}
				return true, nil
			},
		})
	}

	written := make([]bool, len(targets))
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, tg := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			written[i], errs[i] = tg.write()
			return nil
		})
	}
	_ = g.Wait()

	for i, tg := range targets {
		if written[i] {
			res.Paths = append(res.Paths, tg.path)
		}
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Error("Snapshot write failed", "reason", reason, "error", err)
		return res, err
	}
	m.logger.Info("Snapshot written", "reason", reason, "rooms", res.Rooms, "messages", res.Messages, "paths", res.Paths)
	return res, nil
}

func (m *Manager) auditPath() string {
	stamp := m.now().UTC().Format("20060102T150405.000000000Z")
	return filepath.Join(m.cfg.AuditDir, fmt.Sprintf("chat_history_%s.json", stamp))
}

// OnShutdown registers a step to run after the shutdown snapshot. Steps
// run in registration order.
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.stepsMu.Lock()
	defer m.stepsMu.Unlock()
	m.steps = append(m.steps, shutdownStep{name: name, fn: fn})
}

// Shutdown snapshots the cache and then runs the registered steps. Errors
// are logged and do not stop later steps. Calls after the first are no-ops.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		m.logger.Warn("Shutdown already in progress, ignoring request")
		return nil
	}
	m.logger.Info("Shutdown initiated")

	// No periodic snapshot may start or finish after this point.
	if err := m.Stop(ctx); err != nil {
		m.logger.Error("Failed to stop periodic snapshots", "error", err)
	}

	if _, err := m.Snapshot(ctx, ReasonShutdown); err != nil {
		m.logger.Error("Shutdown snapshot failed", "error", err)
	}

	m.stepsMu.Lock()
	steps := make([]shutdownStep, len(m.steps))
	copy(steps, m.steps)
	m.stepsMu.Unlock()

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			m.logger.Error("Shutdown step failed", "step", step.name, "error", err)
			continue
		}
		m.logger.Info("Shutdown step completed", "step", step.name)
	}
	return nil
}

// ShuttingDown reports whether Shutdown has been called.
func (m *Manager) ShuttingDown() bool {
	return m.shuttingDown.Load()
}

// SnapshotRequest is the request for the snapshot service.
type SnapshotRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SnapshotResponse is the response for the snapshot service.
type SnapshotResponse struct {
	Result
	Error string `json:"error,omitempty"`
}

// RegisterServices registers the manual snapshot trigger.
func (m *Manager) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		"snapshot",
		json.Unmarshal,
		json.Marshal,
		m.handleSnapshot,
	); err != nil {
		return fmt.Errorf("failed to register snapshot service: %w", err)
	}

	m.logger.Info("Registered lifecycle services", "services", []string{"snapshot"})
	return nil
}

func (m *Manager) handleSnapshot(ctx context.Context, req SnapshotRequest, _ *mono.Msg) (SnapshotResponse, error) {
	reason := req.Reason
	if reason == "" || reason == ReasonPeriodic {
		reason = ReasonManual
	}
	res, err := m.Snapshot(ctx, reason)
	resp := SnapshotResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}
