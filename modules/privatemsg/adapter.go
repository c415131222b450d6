package privatemsg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// HistoryPort is what other modules use to read private conversations.
type HistoryPort interface {
	History(ctx context.Context, userA, userB string) (*HistoryResponse, error)
	RecentChats(ctx context.Context, user string) (*RecentChatsResponse, error)
}

// ServiceAdapter implements HistoryPort over the service container.
type ServiceAdapter struct {
	container mono.ServiceContainer
}

var _ HistoryPort = (*ServiceAdapter)(nil)

// NewServiceAdapter creates a new ServiceAdapter.
func NewServiceAdapter(container mono.ServiceContainer) *ServiceAdapter {
	return &ServiceAdapter{container: container}
}

// History calls the history service.
func (a *ServiceAdapter) History(ctx context.Context, userA, userB string) (*HistoryResponse, error) {
	req := HistoryRequest{UserA: userA, UserB: userB}
	var resp HistoryResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"history",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	return &resp, nil
}

// RecentChats calls the recent-chats service.
func (a *ServiceAdapter) RecentChats(ctx context.Context, user string) (*RecentChatsResponse, error) {
	req := RecentChatsRequest{User: user}
	var resp RecentChatsResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"recent-chats",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("recent-chats request failed: %w", err)
	}
	return &resp, nil
}
