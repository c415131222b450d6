package history

import (
	"sort"
	"sync"

	"github.com/example/realtime-chat/domain/chat"
)

// Capacity is the maximum number of messages kept per room.
const Capacity = 50

// Cache is the bounded per-room message log. Oldest messages are evicted
// first once a room exceeds Capacity. It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	rooms map[string][]chat.Message
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{rooms: make(map[string][]chat.Message)}
}

// Append pushes msg onto the room's log, evicting from the front beyond Capacity.
func (c *Cache) Append(room string, msg chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := append(c.rooms[room], msg)
	if over := len(msgs) - Capacity; over > 0 {
		// Copy so the evicted prefix is not pinned by the backing array.
		trimmed := make([]chat.Message, Capacity, Capacity+1)
		copy(trimmed, msgs[over:])
		msgs = trimmed
	}
	c.rooms[room] = msgs
}

// Get returns a copy of the room's messages, oldest first.
// Unknown rooms yield an empty slice.
func (c *Cache) Get(room string) []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.rooms[room]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of cached messages for room.
func (c *Cache) Len(room string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms[room])
}

// Rooms returns the sorted names of rooms with non-empty history.
func (c *Cache) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room, msgs := range c.rooms {
		if len(msgs) > 0 {
			rooms = append(rooms, room)
		}
	}
	sort.Strings(rooms)
	return rooms
}

// Clear empties the room's history and reports how many messages were dropped.
func (c *Cache) Clear(room string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.rooms[room])
	delete(c.rooms, room)
	return n
}

// Snapshot returns a deep copy of the room -> messages mapping. Rooms with
// no history are omitted.
func (c *Cache) Snapshot() map[string][]chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]chat.Message, len(c.rooms))
	for room, msgs := range c.rooms {
		if len(msgs) == 0 {
			continue
		}
		cp := make([]chat.Message, len(msgs))
		copy(cp, msgs)
		out[room] = cp
	}
	return out
}

// Restore replaces the cache contents with snapshot. Rooms longer than
// Capacity keep their newest messages.
func (c *Cache) Restore(snapshot map[string][]chat.Message) {
	rooms := make(map[string][]chat.Message, len(snapshot))
	for room, msgs := range snapshot {
		if len(msgs) == 0 {
			continue
		}
		if over := len(msgs) - Capacity; over > 0 {
			msgs = msgs[over:]
		}
		cp := make([]chat.Message, len(msgs))
		copy(cp, msgs)
		rooms[room] = cp
	}

	c.mu.Lock()
	c.rooms = rooms
	c.mu.Unlock()
}

// Stats returns the number of rooms with history and the total message count.
func (c *Cache) Stats() (rooms, messages int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, msgs := range c.rooms {
		if len(msgs) > 0 {
			rooms++
			messages += len(msgs)
		}
	}
	return rooms, messages
}
