package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a room message. Time is assigned by the server.
type Message struct {
	Sender  string
	Content Content
	Time    time.Time
}

// NewMessage stamps a message with the given time.
func NewMessage(sender string, content Content, at time.Time) Message {
	return Message{Sender: sender, Content: content, Time: at}
}

// messageJSON is the wire and snapshot shape of a Message.
type messageJSON struct {
	Name  string    `json:"name"`
	Text  *string   `json:"text"`
	Image *string   `json:"image"`
	Voice *string   `json:"voice"`
	Time  time.Time `json:"time"`
}

// MarshalJSON encodes the message as {name,text,image,voice,time} with the
// unused kinds set to null.
func (m Message) MarshalJSON() ([]byte, error) {
	text, image, voice := m.Content.Fields()
	return json.Marshal(messageJSON{
		Name:  m.Sender,
		Text:  text,
		Image: image,
		Voice: voice,
		Time:  m.Time,
	})
}

// UnmarshalJSON decodes {name,text,image,voice,time} and rejects records
// that do not carry exactly one payload kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := ContentFromFields(raw.Text, raw.Image, raw.Voice)
	if err != nil {
		return fmt.Errorf("message from %q: %w", raw.Name, err)
	}
	m.Sender = raw.Name
	m.Content = content
	m.Time = raw.Time
	return nil
}
