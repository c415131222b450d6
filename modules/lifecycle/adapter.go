package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// SnapshotPort triggers a manual snapshot from another module.
type SnapshotPort interface {
	Snapshot(ctx context.Context, reason string) (*SnapshotResponse, error)
}

// ServiceAdapter implements SnapshotPort over the service container.
type ServiceAdapter struct {
	container mono.ServiceContainer
}

var _ SnapshotPort = (*ServiceAdapter)(nil)

// NewServiceAdapter creates a new ServiceAdapter.
func NewServiceAdapter(container mono.ServiceContainer) *ServiceAdapter {
	return &ServiceAdapter{container: container}
}

// Snapshot calls the snapshot service.
func (a *ServiceAdapter) Snapshot(ctx context.Context, reason string) (*SnapshotResponse, error) {
	req := SnapshotRequest{Reason: reason}
	var resp SnapshotResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"snapshot",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	return &resp, nil
}
