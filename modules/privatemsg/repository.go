package privatemsg

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/example/realtime-chat/domain/chat"
)

const pairClause = "((from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?))"

// Repository provides access to private message storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new private message repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) pair(ctx context.Context, a, b string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&MessageRecord{}).Where(pairClause, a, b, b, a)
}

// Create saves a new message.
func (r *Repository) Create(ctx context.Context, rec *MessageRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create private message: %w", err)
	}
	return nil
}

// Prune deletes the oldest messages of the unordered pair {a, b} beyond
// keep and returns how many were removed. The newest keep rows are chosen
// and the rest deleted in one statement, so concurrent prunes of the same
// pair never remove more than the excess.
func (r *Repository) Prune(ctx context.Context, a, b string, keep int) (int64, error) {
	newest := r.pair(ctx, a, b).
		Select("id").
		Order("sent_at DESC").Order("id DESC").
		Limit(keep)

	result := r.db.WithContext(ctx).
		Where(pairClause, a, b, b, a).
		Where("id NOT IN (?)", newest).
		Delete(&MessageRecord{})
	if err := result.Error; err != nil {
		return 0, fmt.Errorf("failed to prune private messages: %w", err)
	}
	return result.RowsAffected, nil
}

// Conversation returns up to limit of the newest messages between a and b,
// oldest first.
func (r *Repository) Conversation(ctx context.Context, a, b string, limit int) ([]*MessageRecord, error) {
	var recs []*MessageRecord
	if err := r.pair(ctx, a, b).
		Order("sent_at DESC").Order("id DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Involving returns every message where user is sender or recipient,
// newest first.
func (r *Repository) Involving(ctx context.Context, user string) ([]*MessageRecord, error) {
	var recs []*MessageRecord
	if err := r.db.WithContext(ctx).
		Where("from_user = ? OR to_user = ?", user, user).
		Order("sent_at DESC").Order("id DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load private messages for %s: %w", user, err)
	}
	return recs, nil
}

// RecentChats returns the newest message per conversation partner of user,
// most recent conversation first.
func (r *Repository) RecentChats(ctx context.Context, user string) ([]chat.RecentChat, error) {
	recs, err := r.Involving(ctx, user)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	chats := make([]chat.RecentChat, 0)
	for _, rec := range recs {
		msg, err := rec.toDomain()
		if err != nil {
			continue
		}
		partner := msg.Partner(user)
		if _, ok := seen[partner]; ok {
			continue
		}
		seen[partner] = struct{}{}
		chats = append(chats, chat.RecentChat{Partner: partner, LastMessage: msg})
	}
	return chats, nil
}
