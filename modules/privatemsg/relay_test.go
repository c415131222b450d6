package privatemsg

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chat/domain/chat"
)

type fakeDirectory map[string]string // name -> connID

func (d fakeDirectory) FindByName(name string) (chat.Connection, bool) {
	id, ok := d[name]
	if !ok {
		return chat.Connection{}, false
	}
	return chat.Connection{ID: id, Name: name}, true
}

type sent struct {
	connID string
	event  string
	msg    chat.PrivateMessage
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSender) SendTo(connID, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, _ := payload.(chat.PrivateMessage)
	s.sent = append(s.sent, sent{connID: connID, event: event, msg: msg})
}

func (s *fakeSender) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func startModule(t *testing.T, dir Directory, out Sender) *Module {
	t.Helper()
	m := NewModule(Config{
		DBPath:    filepath.Join(t.TempDir(), "private.db"),
		Workers:   2,
		QueueSize: 64,
	}, dir, out, &mockLogger{})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func mustText(t *testing.T, s string) chat.Content {
	t.Helper()
	c, err := chat.TextContent(s)
	require.NoError(t, err)
	return c
}

func waitPersisted(t *testing.T, r *Relay, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.Stats()
		return s.Succeeded+s.Failed >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRelay_DeliversToOnlineRecipient(t *testing.T) {
	out := &fakeSender{}
	m := startModule(t, fakeDirectory{"bob": "conn-bob"}, out)

	msg := m.Relay().Send("conn-alice", "alice", "bob", mustText(t, "hi bob"))
	assert.Equal(t, "alice", msg.From)
	assert.False(t, msg.Time.IsZero())

	got := out.all()
	require.Len(t, got, 2)
	assert.Equal(t, sent{connID: "conn-bob", event: chat.EventPrivateMessage, msg: msg}, got[0])
	assert.Equal(t, sent{connID: "conn-alice", event: chat.EventPrivateMessageSent, msg: msg}, got[1])

	waitPersisted(t, m.Relay(), 1)
	history, err := m.Relay().History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi bob", history[0].Content.Body())
}

func TestRelay_OfflineRecipientStillConfirms(t *testing.T) {
	out := &fakeSender{}
	m := startModule(t, fakeDirectory{}, out)

	m.Relay().Send("conn-alice", "alice", "bob", mustText(t, "are you there"))

	got := out.all()
	require.Len(t, got, 1)
	assert.Equal(t, chat.EventPrivateMessageSent, got[0].event)
}

func TestRelay_StoreUnavailableDoesNotBlockDelivery(t *testing.T) {
	out := &fakeSender{}
	r := NewRelay(fakeDirectory{"bob": "conn-bob"}, out, &mockLogger{})

	r.Send("conn-alice", "alice", "bob", mustText(t, "hi"))
	assert.Len(t, out.all(), 2)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Contains(t, stats.LastError, ErrStoreUnavailable.Error())

	_, err := r.History(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = r.RecentChats(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRelay_RetentionAfterEachInsert(t *testing.T) {
	m := startModule(t, fakeDirectory{}, &fakeSender{})
	r := m.Relay()

	clock := baseTime
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < 51; i++ {
		r.Send("c", "alice", "bob", mustText(t, fmt.Sprintf("m%d", i)))
		// Wait per message so prune order matches insert order.
		waitPersisted(t, r, uint64(i+1))
	}

	history, err := r.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 50)
	assert.Equal(t, "m1", history[0].Content.Body())
	assert.Equal(t, "m50", history[49].Content.Body())
	assert.Equal(t, int64(1), r.Stats().Pruned)
}

func TestModule_Services(t *testing.T) {
	m := startModule(t, fakeDirectory{}, &fakeSender{})
	r := m.Relay()
	r.Send("c", "alice", "bob", mustText(t, "one"))
	r.Send("c", "carol", "alice", mustText(t, "two"))
	waitPersisted(t, r, 2)

	hist, err := m.handleHistory(context.Background(), HistoryRequest{UserA: "alice", UserB: "bob"}, nil)
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 1)

	_, err = m.handleHistory(context.Background(), HistoryRequest{UserA: "alice"}, nil)
	assert.Error(t, err)

	recent, err := m.handleRecentChats(context.Background(), RecentChatsRequest{User: "alice"}, nil)
	require.NoError(t, err)
	require.Len(t, recent.Chats, 2)

	h := m.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, uint64(2), h.Details["succeeded"])
}

func TestModule_CloseIsIdempotent(t *testing.T) {
	m := startModule(t, fakeDirectory{}, &fakeSender{})

	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	_, err := m.Relay().History(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
