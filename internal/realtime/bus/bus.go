// Package bus fans status records out to other processes.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StatusEvent is the wire form of one appended status record.
type StatusEvent struct {
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	OutlineID  uuid.UUID       `json:"outline_id"`
	Seq        int64           `json:"seq"`
	Status     string          `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Bus interface {
	Publish(ctx context.Context, ev StatusEvent) error
	// StartForwarder subscribes and calls onMsg for every event until ctx ends.
	StartForwarder(ctx context.Context, onMsg func(ev StatusEvent)) error
	Close() error
}
