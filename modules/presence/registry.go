package presence

import (
	"sort"
	"sync"

	"github.com/example/realtime-chat/domain/chat"
)

type entry struct {
	conn chat.Connection
	seq  uint64
}

// Registry tracks which connection belongs to which user and room.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry            // connID -> entry
	byName map[string]map[string]uint64 // normalized name -> connID -> seq
	seq    uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*entry),
		byName: make(map[string]map[string]uint64),
	}
}

// Activate inserts or replaces the connection for connID. A previous
// record with the same id, including its room membership, is gone once
// Activate returns.
func (r *Registry) Activate(connID, name, room string) chat.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connID)

	r.seq++
	conn := chat.Connection{ID: connID, Name: name, Room: room}
	r.conns[connID] = &entry{conn: conn, seq: r.seq}

	key := chat.NormalizeName(name)
	if r.byName[key] == nil {
		r.byName[key] = make(map[string]uint64)
	}
	r.byName[key][connID] = r.seq
	return conn
}

// Deactivate removes the connection and returns the removed record.
// The second value is false when connID was not registered.
func (r *Registry) Deactivate(connID string) (chat.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID)
}

func (r *Registry) removeLocked(connID string) (chat.Connection, bool) {
	e, ok := r.conns[connID]
	if !ok {
		return chat.Connection{}, false
	}
	delete(r.conns, connID)

	key := chat.NormalizeName(e.conn.Name)
	if ids := r.byName[key]; ids != nil {
		delete(ids, connID)
		if len(ids) == 0 {
			delete(r.byName, key)
		}
	}
	return e.conn, true
}

// Lookup returns the connection registered under connID.
func (r *Registry) Lookup(connID string) (chat.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return chat.Connection{}, false
	}
	return e.conn, true
}

// ListByRoom returns the members of room in activation order, deduplicated
// by case-insensitive name. The earliest activation of a name wins.
func (r *Registry) ListByRoom(room string) []chat.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0)
	for _, e := range r.conns {
		if e.conn.Room == room && room != "" {
			entries = append(entries, e)
		}
	}
	return dedupe(entries)
}

// ListAll returns every connection, deduplicated by case-insensitive name,
// in activation order.
func (r *Registry) ListAll() []chat.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, e)
	}
	return dedupe(entries)
}

// DistinctRooms returns the sorted names of rooms referenced by at least
// one connection.
func (r *Registry) DistinctRooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range r.conns {
		if e.conn.Room != "" {
			seen[e.conn.Room] = struct{}{}
		}
	}
	rooms := make([]string, 0, len(seen))
	for room := range seen {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// FindByName returns the most recently activated connection for name,
// compared case-insensitively.
func (r *Registry) FindByName(name string) (chat.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    string
		bestSeq uint64
	)
	for connID, seq := range r.byName[chat.NormalizeName(name)] {
		if seq > bestSeq {
			best, bestSeq = connID, seq
		}
	}
	if best == "" {
		return chat.Connection{}, false
	}
	return r.conns[best].conn, true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func dedupe(entries []*entry) []chat.Connection {
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	seen := make(map[string]struct{}, len(entries))
	out := make([]chat.Connection, 0, len(entries))
	for _, e := range entries {
		key := chat.NormalizeName(e.conn.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e.conn)
	}
	return out
}
