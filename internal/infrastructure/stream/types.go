package stream

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is a change event captured at write time and drained to the
// notification topics asynchronously.
type Item struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TaskID    string          `json:"task_id"`
	Payload   json.RawMessage `json:"payload"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
