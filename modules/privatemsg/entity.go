package privatemsg

import (
	"time"

	"github.com/example/realtime-chat/domain/chat"
)

// MessageRecord is the persisted form of a private message.
type MessageRecord struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	FromUser string    `gorm:"size:100;not null;index:idx_private_pair,priority:1" json:"fromUser"`
	ToUser   string    `gorm:"size:100;not null;index:idx_private_pair,priority:2" json:"toUser"`
	Text     *string   `gorm:"type:text" json:"text"`
	Image    *string   `gorm:"type:text" json:"image"`
	Voice    *string   `gorm:"type:text" json:"voice"`
	SentAt   time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "private_messages"
}

func newRecord(msg chat.PrivateMessage) *MessageRecord {
	text, image, voice := msg.Content.Fields()
	return &MessageRecord{
		FromUser: msg.From,
		ToUser:   msg.To,
		Text:     text,
		Image:    image,
		Voice:    voice,
		SentAt:   msg.Time,
	}
}

func (r *MessageRecord) toDomain() (chat.PrivateMessage, error) {
	content, err := chat.ContentFromFields(r.Text, r.Image, r.Voice)
	if err != nil {
		return chat.PrivateMessage{}, err
	}
	return chat.PrivateMessage{
		From:    r.FromUser,
		To:      r.ToUser,
		Content: content,
		Time:    r.SentAt,
	}, nil
}
