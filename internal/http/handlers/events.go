package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/http/response"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/platform/logger"
	"github.com/yungbote/lessonforge/internal/realtime/bus"
)

const sseHeartbeat = 15 * time.Second

// EventsHandler streams status records for one outline request, and the
// lesson units it spawned, as server-sent events.
type EventsHandler struct {
	log       *logger.Logger
	store     OutlineStore
	bus       bus.Bus
	heartbeat time.Duration
}

func NewEventsHandler(baseLog *logger.Logger, store OutlineStore, b bus.Bus) *EventsHandler {
	return &EventsHandler{
		log:       baseLog.With("handler", "EventsHandler"),
		store:     store,
		bus:       b,
		heartbeat: sseHeartbeat,
	}
}

// GET /api/outlines/:id/events
//
// The stream starts with the outline's recorded trail, then forwards live
// events. Clients dedupe on (entity_id, seq). The stream ends after the
// outline's terminal record.
func (h *EventsHandler) Stream(c *gin.Context) {
	req, ok := loadOutline(c, h.store)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("streaming unsupported"))
		return
	}
	ctx := c.Request.Context()

	live := make(chan bus.StatusEvent, 64)
	if err := h.bus.StartForwarder(ctx, func(ev bus.StatusEvent) {
		if ev.OutlineID != req.ID {
			return
		}
		select {
		case live <- ev:
		default:
			h.log.Warn("SSE client slow; dropping event", "outline_id", req.ID, "entity_id", ev.EntityID, "seq", ev.Seq)
		}
	}); err != nil {
		response.RespondFailure(c, "subscribe_failed", err)
		return
	}
	records, err := h.store.ListStatus(ctx, req.ID)
	if err != nil {
		response.RespondFailure(c, "list_status_failed", err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	observability.SSEClients.Inc()
	defer observability.SSEClients.Dec()

	done := false
	for _, rec := range records {
		h.write(w, bus.StatusEvent{
			EntityType: string(rec.EntityType),
			EntityID:   rec.EntityID,
			OutlineID:  req.ID,
			Seq:        rec.Seq,
			Status:     string(rec.Status),
			Metadata:   json.RawMessage(rec.Metadata),
			CreatedAt:  rec.CreatedAt,
		})
		done = done || rec.Status.IsTerminal()
	}
	flusher.Flush()
	if done {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-live:
			h.write(w, ev)
			flusher.Flush()
			if ev.EntityID == req.ID && types.Status(ev.Status).IsTerminal() {
				return
			}
		}
	}
}

func (h *EventsHandler) write(w http.ResponseWriter, ev bus.StatusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("Failed to marshal SSE event", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "id: %s:%d\nevent: %s\ndata: %s\n\n",
		ev.EntityID, ev.Seq, strings.ToLower(ev.EntityType), data)
}
