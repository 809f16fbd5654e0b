package services

import (
	"context"
	"encoding/json"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/internal/infrastructure/stream"
	"github.com/teamtasks/backend/usecase"
)

// StreamBridge adapts task change events onto the outbox so usecases stay
// unaware of the queueing and publishing machinery.
type StreamBridge struct {
	processor *StreamProcessor
}

func NewStreamBridge(processor *StreamProcessor) *StreamBridge {
	return &StreamBridge{processor: processor}
}

func (b *StreamBridge) EmitTaskAssigned(ctx context.Context, event *domain.TaskAssignedEvent) error {
	if b.processor == nil || event == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	item := stream.Item{
		Type:    domain.EventTaskAssigned,
		TaskID:  event.TaskID,
		Payload: payload,
	}
	return b.processor.Capture(ctx, item)
}

func (b *StreamBridge) EmitTaskStatusChanged(ctx context.Context, event *domain.TaskStatusChangedEvent) error {
	if b.processor == nil || event == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	item := stream.Item{
		Type:    domain.EventTaskStatusChanged,
		TaskID:  event.TaskID,
		Payload: payload,
	}
	return b.processor.Capture(ctx, item)
}

var _ usecase.EventEmitter = (*StreamBridge)(nil)
