package presence

import (
	"sort"
	"sync"
)

// Tracker holds the usernames currently broadcasting media. Membership is
// global, not room-scoped.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]struct{})}
}

// Add flags username as streaming. Adding twice is a no-op.
func (t *Tracker) Add(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[username] = struct{}{}
}

// Remove clears the streaming flag for username and reports whether it was set.
func (t *Tracker) Remove(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.users[username]; !ok {
		return false
	}
	delete(t.users, username)
	return true
}

// IsStreaming reports whether username is flagged.
func (t *Tracker) IsStreaming(username string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.users[username]
	return ok
}

// List returns all streaming usernames, sorted.
func (t *Tracker) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.users))
	for u := range t.users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
