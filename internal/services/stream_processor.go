package services

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/internal/infrastructure/stream"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the outbox is drained and where
// events are published.
type ProcessorConfig struct {
	Interval           time.Duration
	BatchSize          int
	MaxRetries         int
	TopicAssigned      string
	TopicStatusChanged string
}

// StreamProcessor drains captured change events to the Redis notification
// topics. Events that cannot be published are retried on later drains and
// dropped once the retry budget is exhausted.
type StreamProcessor struct {
	outbox  *stream.Outbox
	redis   *redislib.Client
	monitor ConnectionHealth
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewStreamProcessor(
	outbox *stream.Outbox,
	redis *redislib.Client,
	monitor ConnectionHealth,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *StreamProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TopicAssigned == "" {
		cfg.TopicAssigned = "tasks.assigned"
	}
	if cfg.TopicStatusChanged == "" {
		cfg.TopicStatusChanged = "tasks.status-changed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sp := &StreamProcessor{
		outbox:  outbox,
		redis:   redis,
		monitor: monitor,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = sp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := sp.Drain(ctx); err != nil {
			sp.logger.Error("outbox drain failed", zap.Error(err))
		}
	})

	return sp
}

// Start launches the cron scheduler.
func (sp *StreamProcessor) Start() {
	if sp == nil || sp.cron == nil {
		return
	}
	sp.cron.Start()
	sp.logger.Info("stream processor started")
}

// Stop gracefully stops the scheduler.
func (sp *StreamProcessor) Stop(ctx context.Context) {
	if sp == nil || sp.cron == nil {
		return
	}
	stopCtx := sp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	sp.logger.Info("stream processor stopped")
}

// Capture attempts to publish the event immediately and falls back to
// persisting it in the outbox.
func (sp *StreamProcessor) Capture(ctx context.Context, item stream.Item) error {
	if sp == nil || sp.outbox == nil {
		return fmt.Errorf("stream processor not configured")
	}

	if err := sp.publish(ctx, item); err == nil {
		return nil
	} else {
		sp.logger.Warn("immediate publish failed, queueing event",
			zap.String("event_type", item.Type),
			zap.Error(err))
	}
	return sp.outbox.Enqueue(item)
}

// Drain publishes pending outbox events.
func (sp *StreamProcessor) Drain(ctx context.Context) error {
	if sp == nil || sp.outbox == nil {
		return nil
	}
	if sp.monitor != nil && !sp.monitor.IsOnline() {
		sp.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	items, err := sp.outbox.GetBatch(sp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := sp.publish(ctx, item); err != nil {
			sp.logger.Error("failed to publish event",
				zap.String("item_id", item.ID),
				zap.String("event_type", item.Type),
				zap.Error(err))

			item.Retries++
			if item.Retries >= sp.cfg.MaxRetries {
				sp.logger.Warn("dropping event (max retries reached)", zap.String("item_id", item.ID))
				_ = sp.outbox.Remove(item)
				continue
			}

			if err := sp.outbox.Remove(item); err != nil {
				sp.logger.Warn("failed to remove outbox item", zap.Error(err))
			}
			if err := sp.outbox.Requeue(item); err != nil {
				sp.logger.Error("failed to requeue outbox item", zap.Error(err))
			}
			continue
		}

		if err := sp.outbox.Remove(item); err != nil {
			sp.logger.Warn("failed to purge published event", zap.Error(err))
		}
	}
	return nil
}

// Size returns the number of pending events.
func (sp *StreamProcessor) Size() int {
	if sp == nil || sp.outbox == nil {
		return 0
	}
	size, err := sp.outbox.Size()
	if err != nil {
		return 0
	}
	return size
}

func (sp *StreamProcessor) publish(ctx context.Context, item stream.Item) error {
	if sp.redis == nil {
		return fmt.Errorf("redis client not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	topic := ""
	switch item.Type {
	case domain.EventTaskAssigned:
		topic = sp.cfg.TopicAssigned
	case domain.EventTaskStatusChanged:
		topic = sp.cfg.TopicStatusChanged
	default:
		return fmt.Errorf("unsupported event type %s", item.Type)
	}

	return sp.redis.Publish(ctx, topic, []byte(item.Payload)).Err()
}
