package chat

import (
	"encoding/json"
	"errors"

	domain "github.com/example/realtime-chat/domain/chat"
)

// Protocol errors returned by Handle.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Frame is an inbound realtime event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type enterRoomPayload struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

type messagePayload struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type imagePayload struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type voicePayload struct {
	Name  string `json:"name"`
	Voice string `json:"voice"`
}

type privateMessagePayload struct {
	FromUser string  `json:"fromUser"`
	ToUser   string  `json:"toUser"`
	Text     *string `json:"text"`
	Image    *string `json:"image"`
	Voice    *string `json:"voice"`
}

type privateHistoryPayload struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

type userPayload struct {
	User string `json:"user"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type streamingPayload struct {
	Username    string `json:"username"`
	IsStreaming bool   `json:"isStreaming"`
}

type voiceCallPayload struct {
	FromUser string `json:"fromUser"`
	ToUser   string `json:"toUser"`
	RoomName string `json:"roomName"`
}

// UserView is one entry of a membership list.
type UserView struct {
	Name  string `json:"name"`
	Room  string `json:"room"`
	IsBot bool   `json:"isBot"`
}

// UserList is the userList payload.
type UserList struct {
	Users []UserView `json:"users"`
}

// RoomList is the roomList payload.
type RoomList struct {
	Rooms []string `json:"rooms"`
}

// OnlineUsers is the onlineUsers payload.
type OnlineUsers struct {
	Users []UserView `json:"users"`
}

// Activity is the typing indicator payload.
type Activity struct {
	Name string `json:"name"`
}

// StreamingUsers is the streamingUsersUpdate payload.
type StreamingUsers struct {
	StreamingUsers []string `json:"streamingUsers"`
}

// PrivateHistory is the privateHistory payload.
type PrivateHistory struct {
	UserA    string                  `json:"userA"`
	UserB    string                  `json:"userB"`
	Messages []domain.PrivateMessage `json:"messages"`
}

// RecentPrivateChats is the recentPrivateChats payload.
type RecentPrivateChats struct {
	Chats []domain.RecentChat `json:"chats"`
}

// RoomCleared is the clearRoom payload.
type RoomCleared struct {
	Room string `json:"room"`
}

// HostLeft is the hostLeftConference payload.
type HostLeft struct {
	HostUsername string `json:"hostUsername"`
	RoomName     string `json:"roomName"`
}

// VoiceCallPopup is the privateVoiceCallPopup payload.
type VoiceCallPopup struct {
	FromUser string `json:"fromUser"`
	RoomName string `json:"roomName"`
}

// VoiceCallUnavailable is the privateVoiceCallUnavailable payload.
type VoiceCallUnavailable struct {
	ToUser string `json:"toUser"`
}
