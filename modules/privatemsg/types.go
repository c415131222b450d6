package privatemsg

import "github.com/example/realtime-chat/domain/chat"

// HistoryRequest is the request for the history service.
type HistoryRequest struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

// HistoryResponse is the response for the history service.
type HistoryResponse struct {
	UserA    string                `json:"userA"`
	UserB    string                `json:"userB"`
	Messages []chat.PrivateMessage `json:"messages"`
}

// RecentChatsRequest is the request for the recent-chats service.
type RecentChatsRequest struct {
	User string `json:"user"`
}

// RecentChatsResponse is the response for the recent-chats service.
type RecentChatsResponse struct {
	User  string            `json:"user"`
	Chats []chat.RecentChat `json:"chats"`
}
