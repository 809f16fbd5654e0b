package usecase

import (
	"context"

	"github.com/teamtasks/backend/domain"
)

// EventEmitter publishes task change events for asynchronous notification
// delivery. Implementations must not block the calling request path.
type EventEmitter interface {
	EmitTaskAssigned(ctx context.Context, event *domain.TaskAssignedEvent) error
	EmitTaskStatusChanged(ctx context.Context, event *domain.TaskStatusChangedEvent) error
}
