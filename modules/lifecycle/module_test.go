package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/history"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func newTestManager(t *testing.T, cache *history.Cache) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := NewManager(cache, Config{
		Path:     filepath.Join(dir, "chat_history.json"),
		AuditDir: filepath.Join(dir, "backups"),
	}, &mockLogger{})
	return m, dir
}

func appendText(t *testing.T, c *history.Cache, room, sender, text string) {
	t.Helper()
	content, err := chat.TextContent(text)
	require.NoError(t, err)
	c.Append(room, chat.NewMessage(sender, content, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
}

func TestManager_SnapshotRestoreRoundTrip(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")
	appendText(t, cache, "general", "bob", "hello")
	appendText(t, cache, "random", "carol", "yo")
	want := cache.Snapshot()

	m, _ := newTestManager(t, cache)
	res, err := m.Snapshot(context.Background(), ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rooms)
	assert.Equal(t, 3, res.Messages)
	require.Len(t, res.Paths, 2)

	// Simulate a restart with a fresh cache.
	restored := history.NewCache()
	m2 := NewManager(restored, m.cfg, &mockLogger{})
	require.NoError(t, m2.Start(context.Background()))
	t.Cleanup(func() { _ = m2.Stop(context.Background()) })

	assert.Equal(t, want, restored.Snapshot())
	_, err = os.Stat(m.cfg.Path)
	assert.True(t, os.IsNotExist(err), "snapshot must be deleted after restore")

	// The audit copy is left alone.
	_, err = os.Stat(res.Paths[1])
	assert.NoError(t, err)
}

func TestManager_PeriodicWritesFixedPathOnly(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")

	m, _ := newTestManager(t, cache)
	res, err := m.Snapshot(context.Background(), ReasonPeriodic)
	require.NoError(t, err)
	assert.Equal(t, []string{m.cfg.Path}, res.Paths)

	_, err = os.Stat(m.cfg.AuditDir)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_RestoreMissingFile(t *testing.T) {
	cache := history.NewCache()
	m, _ := newTestManager(t, cache)

	m.Restore()
	assert.Empty(t, cache.Rooms())
}

func TestManager_RestoreCorruptFileStartsEmpty(t *testing.T) {
	cache := history.NewCache()
	m, _ := newTestManager(t, cache)
	require.NoError(t, os.WriteFile(m.cfg.Path, []byte("{not json"), 0o644))

	m.Restore()
	assert.Empty(t, cache.Rooms())
	_, err := os.Stat(m.cfg.Path)
	assert.NoError(t, err, "unparsable snapshot is left in place")
}

func TestManager_RestoreSkipsInvalidRecords(t *testing.T) {
	cache := history.NewCache()
	m, _ := newTestManager(t, cache)
	doc := `{
		"general": [
			{"name":"alice","text":"ok","image":null,"voice":null,"time":"2024-01-01T10:00:00Z"},
			{"name":"bob","text":"two","image":"data:image/png;base64,A","voice":null,"time":"2024-01-01T10:01:00Z"},
			{"name":"carol","text":null,"image":null,"voice":null,"time":"2024-01-01T10:02:00Z"}
		],
		"broken": [
			{"name":"dave","text":null,"image":"http://example.com/cat.png","voice":null,"time":"2024-01-01T10:03:00Z"}
		]
	}`
	require.NoError(t, os.WriteFile(m.cfg.Path, []byte(doc), 0o644))

	m.Restore()
	msgs := cache.Get("general")
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, []string{"general"}, cache.Rooms())
}

func TestManager_SnapshotFileFormat(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")

	m, _ := newTestManager(t, cache)
	_, err := m.Snapshot(context.Background(), ReasonPeriodic)
	require.NoError(t, err)

	data, err := os.ReadFile(m.cfg.Path)
	require.NoError(t, err)

	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc["general"], 1)
	rec := doc["general"][0]
	assert.Equal(t, "alice", rec["name"])
	assert.Equal(t, "hi", rec["text"])
	assert.Nil(t, rec["image"])
	assert.Nil(t, rec["voice"])
	assert.Equal(t, "2024-01-01T10:00:00Z", rec["time"])
}

func TestManager_AuditFailureDoesNotBlockFixedWrite(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")

	m, dir := newTestManager(t, cache)
	// A regular file where the audit directory should be makes MkdirAll fail.
	blocker := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	res, err := m.Snapshot(context.Background(), ReasonManual)
	assert.Error(t, err)
	assert.Equal(t, []string{m.cfg.Path}, res.Paths)
	_, statErr := os.Stat(m.cfg.Path)
	assert.NoError(t, statErr)
}

func TestManager_ShutdownOrderAndReentrancy(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")
	m, _ := newTestManager(t, cache)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			// The snapshot must already be on disk when steps run.
			if _, err := os.Stat(m.cfg.Path); err == nil {
				order = append(order, name)
			}
			return nil
		}
	}
	m.OnShutdown("close-private-store", record("close-private-store"))
	m.OnShutdown("stop-modules", func(ctx context.Context) error {
		_ = record("stop-modules")(ctx)
		return assert.AnError
	})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, m.ShuttingDown())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Equal(t, []string{"close-private-store", "stop-modules"}, order)
}

func TestManager_PeriodicLoop(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")
	m, _ := newTestManager(t, cache)
	m.cfg.Interval = 20 * time.Millisecond

	require.NoError(t, m.Start(context.Background()))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(m.cfg.Path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))
}

func TestManager_HandleSnapshotDefaultsToManual(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")
	m, _ := newTestManager(t, cache)

	resp, err := m.handleSnapshot(context.Background(), SnapshotRequest{}, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, ReasonManual, resp.Reason)
	assert.Len(t, resp.Paths, 2)

	h := m.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, 1, h.Details["rooms"])
}

func TestManager_StaleFixedWriteIsSkipped(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "older")
	m, _ := newTestManager(t, cache)

	oldGen, _ := m.capture()
	appendText(t, cache, "general", "alice", "newer")
	newGen, _ := m.capture()
	require.Greater(t, newGen, oldGen)

	written, err := m.writeFixed(newGen, []byte(`{"general":[]}`))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = m.writeFixed(oldGen, []byte(`{"stale":[]}`))
	require.NoError(t, err)
	assert.False(t, written, "an older capture must not replace a newer one")

	data, err := os.ReadFile(m.cfg.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"general":[]}`, string(data))
}

func TestManager_ShutdownSnapshotSurvivesInFlightPeriodic(t *testing.T) {
	cache := history.NewCache()
	filler := strings.Repeat("x", 4<<10)
	for r := 0; r < 40; r++ {
		for i := 0; i < history.Capacity; i++ {
			appendText(t, cache, fmt.Sprintf("room-%d", r), "alice", filler)
		}
	}
	m, _ := newTestManager(t, cache)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Snapshot(context.Background(), ReasonPeriodic)
	}()

	for r := 0; r < 40; r++ {
		cache.Clear(fmt.Sprintf("room-%d", r))
	}
	appendText(t, cache, "general", "alice", "last words before shutdown")
	require.NoError(t, m.Shutdown(context.Background()))
	wg.Wait()

	data, err := os.ReadFile(m.cfg.Path)
	require.NoError(t, err)
	rooms, skipped, err := decodeSnapshot(data)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, rooms["general"], 1)
	assert.Equal(t, "last words before shutdown", rooms["general"][0].Content.Body())
}

func TestManager_ShutdownStopsPeriodicLoop(t *testing.T) {
	cache := history.NewCache()
	appendText(t, cache, "general", "alice", "hi")
	m, _ := newTestManager(t, cache)
	m.cfg.Interval = 5 * time.Millisecond

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	select {
	case <-m.doneChan:
	default:
		t.Fatal("periodic loop still running after shutdown")
	}
}
