package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserJoinedEvent is emitted when a user enters a room that has an AI bot.
type UserJoinedEvent struct {
	Room     string    `json:"room"`
	Username string    `json:"username"`
	BotName  string    `json:"bot_name"`
	JoinedAt time.Time `json:"joined_at"`
}

// UserJoinedV1 is the typed event definition for room joins.
// Subject: events.aibot.v1.user-joined
var UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
	"aibot", "UserJoined", "v1",
)

// MessagePostedEvent is emitted when a text message lands in a room that
// has an AI bot.
type MessagePostedEvent struct {
	Room     string    `json:"room"`
	Username string    `json:"username"`
	BotName  string    `json:"bot_name"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

// MessagePostedV1 is the typed event definition for room messages.
// Subject: events.aibot.v1.message-posted
var MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
	"aibot", "MessagePosted", "v1",
)

// BotReplyEvent carries a generated reply to be posted into a room.
type BotReplyEvent struct {
	Room    string `json:"room"`
	BotName string `json:"botName"`
	Text    string `json:"text"`
}

// BotReplyV1 is the typed event definition for bot replies.
// Subject: events.aibot.v1.bot-reply
var BotReplyV1 = helper.EventDefinition[BotReplyEvent](
	"aibot", "BotReply", "v1",
)
