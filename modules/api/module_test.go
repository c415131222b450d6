package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/lifecycle"
	"github.com/example/realtime-chat/modules/privatemsg"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

type fakeConnections struct{ clients int }

func (f *fakeConnections) Register(string, broadcast.Conn) { f.clients++ }
func (f *fakeConnections) Unregister(string)               { f.clients-- }
func (f *fakeConnections) ClientCount() int                { return f.clients }
func (f *fakeConnections) RoomClientCount(string) int      { return 0 }

type fakeRealtime struct {
	rooms     []string
	history   map[string][]domain.Message
	streaming []string
	cleared   []string
}

func (f *fakeRealtime) Handle(context.Context, string, []byte) error { return nil }
func (f *fakeRealtime) Disconnect(string)                            {}
func (f *fakeRealtime) SendSystem(string, string)                    {}
func (f *fakeRealtime) RoomList() chat.RoomList                      { return chat.RoomList{Rooms: f.rooms} }
func (f *fakeRealtime) StreamingUsers() chat.StreamingUsers {
	return chat.StreamingUsers{StreamingUsers: f.streaming}
}

func (f *fakeRealtime) RoomHistory(room string) []domain.Message {
	if msgs, ok := f.history[room]; ok {
		return msgs
	}
	return []domain.Message{}
}

func (f *fakeRealtime) UserList(room string) chat.UserList {
	return chat.UserList{Users: []chat.UserView{{Name: "alice", Room: room}}}
}

func (f *fakeRealtime) ClearRoom(room string) int {
	f.cleared = append(f.cleared, room)
	return len(f.history[room])
}

// mockHistoryPort implements privatemsg.HistoryPort for testing.
type mockHistoryPort struct {
	historyFunc func(ctx context.Context, a, b string) (*privatemsg.HistoryResponse, error)
	recentFunc  func(ctx context.Context, user string) (*privatemsg.RecentChatsResponse, error)
}

func (m *mockHistoryPort) History(ctx context.Context, a, b string) (*privatemsg.HistoryResponse, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, a, b)
	}
	return nil, errors.New("not implemented")
}

func (m *mockHistoryPort) RecentChats(ctx context.Context, user string) (*privatemsg.RecentChatsResponse, error) {
	if m.recentFunc != nil {
		return m.recentFunc(ctx, user)
	}
	return nil, errors.New("not implemented")
}

// mockSnapshotPort implements lifecycle.SnapshotPort for testing.
type mockSnapshotPort struct {
	calls int
	resp  *lifecycle.SnapshotResponse
	err   error
}

func (m *mockSnapshotPort) Snapshot(_ context.Context, reason string) (*lifecycle.SnapshotResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	m.resp.Reason = reason
	return m.resp, nil
}

type testEnv struct {
	app       *fiber.App
	realtime  *fakeRealtime
	private   *mockHistoryPort
	snapshots *mockSnapshotPort
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	text, err := domain.TextContent("hello")
	require.NoError(t, err)

	env := &testEnv{
		realtime: &fakeRealtime{
			rooms:     []string{"general", "random"},
			history:   map[string][]domain.Message{"general": {domain.NewMessage("alice", text, time.Unix(0, 0).UTC())}},
			streaming: []string{"carol"},
		},
		private:   &mockHistoryPort{},
		snapshots: &mockSnapshotPort{resp: &lifecycle.SnapshotResponse{}},
	}

	m := NewModule(Config{Addr: ":0", AdminToken: adminToken, RateLimit: 10, RateBurst: 20},
		&fakeConnections{clients: 2}, env.realtime, &mockLogger{})
	m.private = env.private
	m.snapshots = env.snapshots
	env.app = m.newApp()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.EqualValues(t, 2, resp.Details["connected_clients"])
	assert.EqualValues(t, 2, resp.Details["rooms"])
	assert.EqualValues(t, 1, resp.Details["streaming"])
}

func TestRoomRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	status, body := env.do(t, http.MethodGet, "/api/v1/rooms", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"rooms":["general","random"]}`, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/rooms/general/history", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room":"general","messages":[{"name":"alice","text":"hello","image":null,"voice":null,"time":"1970-01-01T00:00:00Z"}]}`, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/rooms/empty/history", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room":"empty","messages":[]}`, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/rooms/general/users", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room":"general","users":[{"name":"alice","room":"general","isBot":false}]}`, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/streaming", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"streamingUsers":["carol"]}`, body)
}

func TestPrivateHistory(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		historyFunc    func(ctx context.Context, a, b string) (*privatemsg.HistoryResponse, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "missing userB",
			target:         "/api/v1/private/history?userA=alice",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "userA and userB are required",
		},
		{
			name:   "empty conversation",
			target: "/api/v1/private/history?userA=alice&userB=bob",
			historyFunc: func(_ context.Context, a, b string) (*privatemsg.HistoryResponse, error) {
				return &privatemsg.HistoryResponse{UserA: a, UserB: b}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"messages":[]`,
		},
		{
			name:   "service failure",
			target: "/api/v1/private/history?userA=alice&userB=bob",
			historyFunc: func(context.Context, string, string) (*privatemsg.HistoryResponse, error) {
				return nil, errors.New("timeout")
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "history_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.private.historyFunc = tt.historyFunc

			status, body := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, body, tt.expectedBody)
		})
	}
}

func TestRecentChats(t *testing.T) {
	env := newTestEnv(t, "")
	var gotUser string
	env.private.recentFunc = func(_ context.Context, user string) (*privatemsg.RecentChatsResponse, error) {
		gotUser = user
		return &privatemsg.RecentChatsResponse{User: user, Chats: []domain.RecentChat{{Partner: "bob"}}}, nil
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/private/recent/alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", gotUser)
	assert.Contains(t, body, `"partner":"bob"`)
}

func TestAdminRoutes(t *testing.T) {
	tests := []struct {
		name           string
		adminToken     string
		header         string
		target         string
		expectedStatus int
	}{
		{"disabled without token", "", "anything", "/admin/snapshot", http.StatusForbidden},
		{"missing header", "s3cret", "", "/admin/snapshot", http.StatusUnauthorized},
		{"wrong token", "s3cret", "guess", "/admin/rooms/general/clear", http.StatusUnauthorized},
		{"snapshot", "s3cret", "s3cret", "/admin/snapshot", http.StatusOK},
		{"clear room", "s3cret", "s3cret", "/admin/rooms/general/clear", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.adminToken)
			headers := map[string]string{}
			if tt.header != "" {
				headers[adminTokenHeader] = tt.header
			}

			status, _ := env.do(t, http.MethodPost, tt.target, headers)
			assert.Equal(t, tt.expectedStatus, status)
			if status != http.StatusOK {
				assert.Zero(t, env.snapshots.calls)
				assert.Empty(t, env.realtime.cleared)
			}
		})
	}
}

func TestTriggerSnapshot(t *testing.T) {
	env := newTestEnv(t, "tok")
	env.snapshots.resp = &lifecycle.SnapshotResponse{
		Result: lifecycle.Result{Rooms: 1, Messages: 3, Paths: []string{"data/chat_history.json"}},
	}

	status, body := env.do(t, http.MethodPost, "/admin/snapshot", map[string]string{adminTokenHeader: "tok"})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"reason":"manual","rooms":1,"messages":3,"paths":["data/chat_history.json"]}`, body)

	env.snapshots.resp = &lifecycle.SnapshotResponse{Error: "disk full"}
	status, body = env.do(t, http.MethodPost, "/admin/snapshot", map[string]string{adminTokenHeader: "tok"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "disk full")

	env.snapshots.err = errors.New("no responders")
	status, _ = env.do(t, http.MethodPost, "/admin/snapshot", map[string]string{adminTokenHeader: "tok"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestClearRoomResponse(t *testing.T) {
	env := newTestEnv(t, "tok")

	status, body := env.do(t, http.MethodPost, "/admin/rooms/general/clear", map[string]string{adminTokenHeader: "tok"})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room":"general","cleared":1}`, body)
	assert.Equal(t, []string{"general"}, env.realtime.cleared)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, "")

	status, _ := env.do(t, http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func TestStart_RequiresDependencies(t *testing.T) {
	m := NewModule(Config{Addr: ":0"}, &fakeConnections{}, &fakeRealtime{}, &mockLogger{})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "privatemsg")

	assert.Equal(t, "api", m.Name())
	assert.Equal(t, []string{"privatemsg", "lifecycle"}, m.Dependencies())
	assert.False(t, m.Health(context.Background()).Healthy)
	assert.NoError(t, m.Stop(context.Background()))
}
