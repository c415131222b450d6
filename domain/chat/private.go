package chat

import (
	"encoding/json"
	"time"
)

// PrivateRetention is the number of messages kept per conversation pair.
const PrivateRetention = 50

// PrivateMessage is a point-to-point message between two users.
type PrivateMessage struct {
	From    string
	To      string
	Content Content
	Time    time.Time
}

// Partner returns the other party of the conversation from user's point of view.
func (p PrivateMessage) Partner(user string) string {
	if p.From == user {
		return p.To
	}
	return p.From
}

// Involves reports whether user is either party of the message.
func (p PrivateMessage) Involves(user string) bool {
	return p.From == user || p.To == user
}

type privateMessageJSON struct {
	FromUser  string    `json:"fromUser"`
	ToUser    string    `json:"toUser"`
	Text      *string   `json:"text"`
	Image     *string   `json:"image"`
	Voice     *string   `json:"voice"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON encodes the message as {fromUser,toUser,text,image,voice,timestamp}.
func (p PrivateMessage) MarshalJSON() ([]byte, error) {
	text, image, voice := p.Content.Fields()
	return json.Marshal(privateMessageJSON{
		FromUser:  p.From,
		ToUser:    p.To,
		Text:      text,
		Image:     image,
		Voice:     voice,
		Timestamp: p.Time,
	})
}

// UnmarshalJSON decodes the wire shape and enforces content-kind exclusivity.
func (p *PrivateMessage) UnmarshalJSON(data []byte) error {
	var raw privateMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := ContentFromFields(raw.Text, raw.Image, raw.Voice)
	if err != nil {
		return err
	}
	p.From = raw.FromUser
	p.To = raw.ToUser
	p.Content = content
	p.Time = raw.Timestamp
	return nil
}

// RecentChat is the latest message of one conversation.
type RecentChat struct {
	Partner     string         `json:"partner"`
	LastMessage PrivateMessage `json:"lastMessage"`
}
