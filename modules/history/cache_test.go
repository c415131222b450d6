package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chat/domain/chat"
)

func textMessage(t *testing.T, sender, text string) chat.Message {
	t.Helper()
	c, err := chat.TextContent(text)
	require.NoError(t, err)
	return chat.NewMessage(sender, c, time.Now())
}

func TestCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := NewCache()
	for i := 1; i <= 60; i++ {
		c.Append("lobby", textMessage(t, "alice", fmt.Sprintf("%d", i)))
	}

	msgs := c.Get("lobby")
	require.Len(t, msgs, Capacity)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("%d", i+11), m.Content.Body())
	}
}

func TestCache_BoundedForAnyLength(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 120} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			c := NewCache()
			for i := 0; i < n; i++ {
				c.Append("r", textMessage(t, "u", fmt.Sprintf("m%d", i)))
			}
			msgs := c.Get("r")
			want := n
			if want > Capacity {
				want = Capacity
			}
			require.Len(t, msgs, want)
			if n > 0 {
				assert.Equal(t, fmt.Sprintf("m%d", n-1), msgs[len(msgs)-1].Content.Body())
			}
		})
	}
}

func TestCache_GetUnknownRoom(t *testing.T) {
	c := NewCache()
	msgs := c.Get("nowhere")
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Append("r", textMessage(t, "u", "one"))

	msgs := c.Get("r")
	msgs[0].Sender = "mallory"
	assert.Equal(t, "u", c.Get("r")[0].Sender)
}

func TestCache_RoomsAndClear(t *testing.T) {
	c := NewCache()
	c.Append("b", textMessage(t, "u", "x"))
	c.Append("a", textMessage(t, "u", "y"))
	c.Append("a", textMessage(t, "u", "z"))
	assert.Equal(t, []string{"a", "b"}, c.Rooms())

	assert.Equal(t, 2, c.Clear("a"))
	assert.Equal(t, []string{"b"}, c.Rooms())
	assert.Empty(t, c.Get("a"))
	assert.Equal(t, 0, c.Clear("a"))

	rooms, messages := c.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, messages)
}

func TestCache_SnapshotRestore(t *testing.T) {
	c := NewCache()
	c.Append("general", textMessage(t, "alice", "hi"))
	c.Append("general", textMessage(t, "bob", "hey"))
	c.Append("random", textMessage(t, "carol", "yo"))

	snap := c.Snapshot()

	restored := NewCache()
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())

	// Mutating the snapshot does not leak into the cache.
	snap["general"][0].Sender = "mallory"
	assert.Equal(t, "alice", restored.Get("general")[0].Sender)
}

func TestCache_RestoreTrimsToCapacity(t *testing.T) {
	msgs := make([]chat.Message, 0, 70)
	for i := 0; i < 70; i++ {
		msgs = append(msgs, textMessage(t, "u", fmt.Sprintf("%d", i)))
	}

	c := NewCache()
	c.Restore(map[string][]chat.Message{"big": msgs, "empty": {}})

	got := c.Get("big")
	require.Len(t, got, Capacity)
	assert.Equal(t, "20", got[0].Content.Body())
	assert.Equal(t, []string{"big"}, c.Rooms())
}
