package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/internal/infrastructure/stream"
)

type Monitor struct {
	directory *pgxpool.Pool
	redis     *redislib.Client
	docs      *docstore.Store
	outbox    *stream.Outbox

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	logger   *zap.Logger
}

func New(directory *pgxpool.Pool, redis *redislib.Client, docs *docstore.Store, outbox *stream.Outbox, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		directory: directory,
		redis:     redis,
		docs:      docs,
		outbox:    outbox,
		interval:  interval,
		stopCh:    make(chan struct{}),
		logger:    logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	close(m.stopCh)
}

// IsOnline reports whether every dependency of the write and publish paths
// is up. The outbox drain is gated on this, so a broker outage holds queued
// events instead of spending their retries.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Directory && m.status.DocStore && m.status.Redis
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	status := Status{
		Directory:  m.checkDirectory(),
		Redis:      m.checkRedis(),
		DocStore:   m.checkDocStore(),
		OutboxSize: m.outboxSize(),
		LastCheck:  time.Now(),
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Monitor) checkDirectory() bool {
	if m.directory == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.directory.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkDocStore() bool {
	if m.docs == nil {
		return false
	}
	return m.docs.Ping() == nil
}

func (m *Monitor) outboxSize() int {
	if m.outbox == nil {
		return 0
	}
	size, err := m.outbox.Size()
	if err != nil {
		m.logger.Warn("outbox size check failed", zap.Error(err))
	}
	return size
}
