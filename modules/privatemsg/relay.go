package privatemsg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chat/domain/chat"
)

// ErrStoreUnavailable is returned when the durable store is not open.
var ErrStoreUnavailable = errors.New("private message store unavailable")

// Directory resolves an online user to a live connection.
type Directory interface {
	FindByName(name string) (chat.Connection, bool)
}

// Sender delivers an outbound event to a single connection.
type Sender interface {
	SendTo(connID, event string, payload any)
}

// Stats counts background persistence outcomes.
type Stats struct {
	Succeeded   uint64    `json:"succeeded"`
	Failed      uint64    `json:"failed"`
	Pruned      int64     `json:"pruned"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitempty"`
}

// Relay delivers private messages to online recipients and persists them
// in the background with a per-pair retention cap.
type Relay struct {
	directory Directory
	out       Sender
	logger    types.Logger
	now       func() time.Time

	storeMu sync.RWMutex
	repo    *Repository
	pool    *Pool

	statsMu sync.Mutex
	stats   Stats
}

// NewRelay creates a relay. The store is attached later, once opened.
func NewRelay(directory Directory, out Sender, logger types.Logger) *Relay {
	return &Relay{
		directory: directory,
		out:       out,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *Relay) attach(repo *Repository, pool *Pool) {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	r.repo = repo
	r.pool = pool
}

func (r *Relay) detach() {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	r.repo = nil
	r.pool = nil
}

func (r *Relay) store() (*Repository, *Pool) {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()
	return r.repo, r.pool
}

// Send stamps and delivers a private message. Persistence happens on the
// task pool; its failure is logged and never affects delivery. The
// recipient gets privateMessage when online and the sender always gets
// privateMessageSent.
func (r *Relay) Send(senderConnID, from, to string, content chat.Content) chat.PrivateMessage {
	msg := chat.PrivateMessage{
		From:    from,
		To:      to,
		Content: content,
		Time:    r.now(),
	}

	r.persist(msg)

	if conn, ok := r.directory.FindByName(to); ok {
		r.out.SendTo(conn.ID, chat.EventPrivateMessage, msg)
	}
	r.out.SendTo(senderConnID, chat.EventPrivateMessageSent, msg)
	return msg
}

func (r *Relay) persist(msg chat.PrivateMessage) {
	repo, pool := r.store()
	if repo == nil || pool == nil {
		r.recordFailure(msg, ErrStoreUnavailable)
		return
	}

	var pruned int64
	task := Task{
		Name: "persist-private-message",
		Run: func(ctx context.Context) error {
			if err := repo.Create(ctx, newRecord(msg)); err != nil {
				return err
			}
			n, err := repo.Prune(ctx, msg.From, msg.To, chat.PrivateRetention)
			pruned = n
			return err
		},
		OnDone: func(err error) {
			if err != nil {
				r.recordFailure(msg, err)
				return
			}
			r.statsMu.Lock()
			r.stats.Succeeded++
			r.stats.Pruned += pruned
			r.statsMu.Unlock()
		},
	}
	if err := pool.Submit(task); err != nil {
		r.recordFailure(msg, err)
	}
}

func (r *Relay) recordFailure(msg chat.PrivateMessage, err error) {
	r.logger.Error("Failed to persist private message",
		"from", msg.From,
		"to", msg.To,
		"error", err)

	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.Failed++
	r.stats.LastError = err.Error()
	r.stats.LastErrorAt = r.now()
}

// History returns up to the 50 newest messages between a and b, oldest first.
func (r *Relay) History(ctx context.Context, a, b string) ([]chat.PrivateMessage, error) {
	repo, _ := r.store()
	if repo == nil {
		return nil, ErrStoreUnavailable
	}

	recs, err := repo.Conversation(ctx, a, b, chat.PrivateRetention)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.PrivateMessage, 0, len(recs))
	for _, rec := range recs {
		msg, err := rec.toDomain()
		if err != nil {
			r.logger.Warn("Skipping invalid private message", "id", rec.ID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// RecentChats returns the newest message per partner of user, most recent first.
func (r *Relay) RecentChats(ctx context.Context, user string) ([]chat.RecentChat, error) {
	repo, _ := r.store()
	if repo == nil {
		return nil, ErrStoreUnavailable
	}
	return repo.RecentChats(ctx, user)
}

// Stats returns a copy of the persistence counters.
func (r *Relay) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}
