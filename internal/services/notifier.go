package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/platform/logger"
	"github.com/yungbote/lessonforge/internal/realtime/bus"
)

// StatusNotifier is told about every appended status record.
type StatusNotifier interface {
	StatusAppended(ctx context.Context, outlineID uuid.UUID, rec *types.StatusRecord)
}

type busNotifier struct {
	bus bus.Bus
	log *logger.Logger
}

func NewStatusNotifier(b bus.Bus, baseLog *logger.Logger) StatusNotifier {
	return &busNotifier{bus: b, log: baseLog.With("service", "StatusNotifier")}
}

func (n *busNotifier) StatusAppended(ctx context.Context, outlineID uuid.UUID, rec *types.StatusRecord) {
	if n == nil || n.bus == nil || rec == nil {
		return
	}
	ev := bus.StatusEvent{
		EntityType: string(rec.EntityType),
		EntityID:   rec.EntityID,
		OutlineID:  outlineID,
		Seq:        rec.Seq,
		Status:     string(rec.Status),
		Metadata:   []byte(rec.Metadata),
		CreatedAt:  rec.CreatedAt,
	}
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("status publish failed", "entity_id", rec.EntityID, "status", rec.Status, "error", err)
	}
}
