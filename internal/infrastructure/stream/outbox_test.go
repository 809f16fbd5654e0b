package stream

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	outbox, err := Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { outbox.Close() })
	return outbox
}

func TestOutboxEnqueueOrder(t *testing.T) {
	outbox := openTestOutbox(t)

	base := time.Now()
	for i, eventType := range []string{"first", "second", "third"} {
		require.NoError(t, outbox.Enqueue(Item{
			Type:      eventType,
			TaskID:    "t1",
			Payload:   json.RawMessage(`{}`),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	items, err := outbox.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].Type)
	assert.Equal(t, "second", items[1].Type)
	assert.Equal(t, "third", items[2].Type)
}

func TestOutboxGetBatchLimit(t *testing.T) {
	outbox := openTestOutbox(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, outbox.Enqueue(Item{Type: "e", Payload: json.RawMessage(`{}`)}))
	}

	items, err := outbox.GetBatch(2)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// GetBatch does not consume.
	size, err := outbox.Size()
	require.NoError(t, err)
	assert.Equal(t, 5, size)
}

func TestOutboxRemoveAndRequeue(t *testing.T) {
	outbox := openTestOutbox(t)
	require.NoError(t, outbox.Enqueue(Item{Type: "e", Payload: json.RawMessage(`{}`)}))

	items, err := outbox.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	item.Retries++
	require.NoError(t, outbox.Remove(item))
	require.NoError(t, outbox.Requeue(item))

	items, err = outbox.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)

	require.NoError(t, outbox.Remove(items[0]))
	size, err := outbox.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestOutboxCleanup(t *testing.T) {
	outbox := openTestOutbox(t)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, outbox.Enqueue(Item{Type: "old", Payload: json.RawMessage(`{}`), Timestamp: old}))
	require.NoError(t, outbox.Enqueue(Item{Type: "fresh", Payload: json.RawMessage(`{}`)}))

	require.NoError(t, outbox.Cleanup(time.Now().Add(-time.Minute)))

	items, err := outbox.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].Type)
}

func TestOutboxItemNormalization(t *testing.T) {
	outbox := openTestOutbox(t)
	require.NoError(t, outbox.Enqueue(Item{Type: "e", Payload: json.RawMessage(`{}`)}))

	items, err := outbox.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].ID)
	assert.False(t, items[0].Timestamp.IsZero())
}
