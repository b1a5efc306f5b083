package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
	"github.com/yungbote/lessonforge/internal/http/response"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// maxOutlineBytes bounds the submitted outline text.
const maxOutlineBytes = 64 << 10

// OutlineStore is the read/write surface the handlers need from the
// persistence gateway.
type OutlineStore interface {
	CreateOutlineRequest(ctx context.Context, title, outlineText string) (*types.OutlineRequest, error)
	FindOutlineRequest(ctx context.Context, id uuid.UUID) (*types.OutlineRequest, error)
	ListOutlineRequests(ctx context.Context, limit int) ([]*types.OutlineRequest, error)
	AppendStatus(ctx context.Context, entity types.EntityType, entityID uuid.UUID, status types.Status, metadata any) (*types.StatusRecord, error)
	LatestStatus(ctx context.Context, entityID uuid.UUID) (*types.StatusRecord, error)
	LatestStatuses(ctx context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]*types.StatusRecord, error)
	ListStatus(ctx context.Context, entityID uuid.UUID) ([]*types.StatusRecord, error)
	ListLessons(ctx context.Context, outlineID uuid.UUID) ([]*types.LessonUnit, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*types.LessonUnit, error)
	ArtifactURL(u *types.LessonUnit) string
}

// Dispatcher starts a run for an outline request, in-process or on Temporal.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

type OutlineHandler struct {
	log      *logger.Logger
	store    OutlineStore
	dispatch Dispatcher
}

func NewOutlineHandler(baseLog *logger.Logger, store OutlineStore, dispatch Dispatcher) *OutlineHandler {
	return &OutlineHandler{
		log:      baseLog.With("handler", "OutlineHandler"),
		store:    store,
		dispatch: dispatch,
	}
}

type submitOutlineRequest struct {
	Title   string `json:"title"`
	Outline string `json:"outline" binding:"required"`
}

type lessonSummary struct {
	ID          uuid.UUID    `json:"id"`
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	Status      types.Status `json:"status,omitempty"`
	Attempts    int          `json:"attempts"`
	Compiled    bool         `json:"compiled"`
	ArtifactURL string       `json:"artifact_url,omitempty"`
}

type lessonDetail struct {
	lessonSummary
	Blocks           types.Blocks          `json:"blocks"`
	GeneratedSource  string                `json:"generated_source,omitempty"`
	CompiledArtifact *string               `json:"compiled_artifact,omitempty"`
	Records          []*types.StatusRecord `json:"records,omitempty"`
}

// POST /api/outlines
func (h *OutlineHandler) Submit(c *gin.Context) {
	var body submitOutlineRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(body.Outline) > maxOutlineBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "outline_too_large",
			fmt.Errorf("outline exceeds %d bytes", maxOutlineBytes))
		return
	}
	ctx := c.Request.Context()
	req, err := h.store.CreateOutlineRequest(ctx, body.Title, body.Outline)
	if err != nil {
		response.RespondFailure(c, "create_outline_failed", err)
		return
	}
	rec, err := h.store.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusSubmitted, orchestrator.SubmittedMeta{Title: req.Title})
	if err != nil {
		response.RespondFailure(c, "create_outline_failed", err)
		return
	}
	// A failed dispatch leaves the request submitted; the recovery sweeper
	// picks it up.
	if err := h.dispatch.Dispatch(context.WithoutCancel(ctx), req.ID); err != nil {
		h.log.Warn("Outline dispatch failed", "outline_id", req.ID, "error", err)
	}
	response.RespondAccepted(c, gin.H{"outline_request": req, "status": rec.Status})
}

// GET /api/outlines
func (h *OutlineHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	reqs, err := h.store.ListOutlineRequests(c.Request.Context(), limit)
	if err != nil {
		response.RespondFailure(c, "list_outlines_failed", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	latest, err := h.store.LatestStatuses(c.Request.Context(), ids)
	if err != nil {
		response.RespondFailure(c, "list_outlines_failed", err)
		return
	}
	items := make([]gin.H, 0, len(reqs))
	for _, r := range reqs {
		item := gin.H{"outline_request": r}
		if rec := latest[r.ID]; rec != nil {
			item["status"] = rec.Status
		}
		items = append(items, item)
	}
	response.RespondOK(c, gin.H{"outlines": items})
}

// GET /api/outlines/:id
func (h *OutlineHandler) Get(c *gin.Context) {
	req, ok := loadOutline(c, h.store)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	latest, err := h.store.LatestStatus(ctx, req.ID)
	if err != nil {
		response.RespondFailure(c, "get_outline_failed", err)
		return
	}
	lessons, err := h.summaries(ctx, req.ID)
	if err != nil {
		response.RespondFailure(c, "get_outline_failed", err)
		return
	}
	out := gin.H{"outline_request": req, "lessons": lessons}
	if latest != nil {
		out["status"] = latest.Status
		out["status_record"] = latest
	}
	response.RespondOK(c, out)
}

// GET /api/outlines/:id/status
func (h *OutlineHandler) Status(c *gin.Context) {
	req, ok := loadOutline(c, h.store)
	if !ok {
		return
	}
	records, err := h.store.ListStatus(c.Request.Context(), req.ID)
	if err != nil {
		response.RespondFailure(c, "list_status_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"outline_id": req.ID, "records": records})
}

// GET /api/outlines/:id/lessons
func (h *OutlineHandler) Lessons(c *gin.Context) {
	req, ok := loadOutline(c, h.store)
	if !ok {
		return
	}
	units, err := h.store.ListLessons(c.Request.Context(), req.ID)
	if err != nil {
		response.RespondFailure(c, "list_lessons_failed", err)
		return
	}
	latest, err := h.latestFor(c.Request.Context(), units)
	if err != nil {
		response.RespondFailure(c, "list_lessons_failed", err)
		return
	}
	out := make([]lessonDetail, 0, len(units))
	for _, u := range units {
		d, err := h.detail(u, latest[u.ID])
		if err != nil {
			response.RespondFailure(c, "list_lessons_failed", err)
			return
		}
		out = append(out, d)
	}
	response.RespondOK(c, gin.H{"outline_id": req.ID, "lessons": out})
}

// GET /api/lessons/:id
func (h *OutlineHandler) Lesson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return
	}
	ctx := c.Request.Context()
	u, err := h.store.GetLesson(ctx, id)
	if err != nil {
		response.RespondFailure(c, "get_lesson_failed", err)
		return
	}
	if u == nil {
		response.RespondError(c, http.StatusNotFound, "lesson_not_found", apperr.ErrNotFound)
		return
	}
	records, err := h.store.ListStatus(ctx, id)
	if err != nil {
		response.RespondFailure(c, "get_lesson_failed", err)
		return
	}
	var latest *types.StatusRecord
	if len(records) > 0 {
		latest = records[len(records)-1]
	}
	d, err := h.detail(u, latest)
	if err != nil {
		response.RespondFailure(c, "get_lesson_failed", err)
		return
	}
	d.Records = records
	response.RespondOK(c, gin.H{"lesson": d})
}

// POST /api/outlines/:id/resume
func (h *OutlineHandler) Resume(c *gin.Context) {
	req, ok := loadOutline(c, h.store)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	latest, err := h.store.LatestStatus(ctx, req.ID)
	if err != nil {
		response.RespondFailure(c, "resume_failed", err)
		return
	}
	if latest != nil && latest.Status.IsTerminal() {
		response.RespondError(c, http.StatusConflict, "outline_terminal",
			fmt.Errorf("outline request is already %s", latest.Status))
		return
	}
	if err := h.dispatch.Dispatch(context.WithoutCancel(ctx), req.ID); err != nil {
		response.RespondFailure(c, "resume_failed", err)
		return
	}
	out := gin.H{"outline_id": req.ID}
	if latest != nil {
		out["status"] = latest.Status
	}
	response.RespondAccepted(c, out)
}

func loadOutline(c *gin.Context, store OutlineStore) (*types.OutlineRequest, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_outline_id", err)
		return nil, false
	}
	req, err := store.FindOutlineRequest(c.Request.Context(), id)
	if err != nil {
		response.RespondFailure(c, "get_outline_failed", err)
		return nil, false
	}
	if req == nil {
		response.RespondError(c, http.StatusNotFound, "outline_not_found", apperr.ErrNotFound)
		return nil, false
	}
	return req, true
}

func (h *OutlineHandler) latestFor(ctx context.Context, units []*types.LessonUnit) (map[uuid.UUID]*types.StatusRecord, error) {
	ids := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return h.store.LatestStatuses(ctx, ids)
}

func (h *OutlineHandler) summaries(ctx context.Context, outlineID uuid.UUID) ([]lessonSummary, error) {
	units, err := h.store.ListLessons(ctx, outlineID)
	if err != nil {
		return nil, err
	}
	latest, err := h.latestFor(ctx, units)
	if err != nil {
		return nil, err
	}
	out := make([]lessonSummary, 0, len(units))
	for _, u := range units {
		out = append(out, h.summary(u, latest[u.ID]))
	}
	return out, nil
}

func (h *OutlineHandler) summary(u *types.LessonUnit, latest *types.StatusRecord) lessonSummary {
	s := lessonSummary{
		ID:          u.ID,
		Index:       u.Index,
		Title:       u.Title,
		Attempts:    u.ValidationAttemptCount,
		Compiled:    u.CompiledArtifact != nil,
		ArtifactURL: h.store.ArtifactURL(u),
	}
	if latest != nil {
		s.Status = latest.Status
	}
	return s
}

func (h *OutlineHandler) detail(u *types.LessonUnit, latest *types.StatusRecord) (lessonDetail, error) {
	lesson, err := u.Lesson()
	if err != nil {
		return lessonDetail{}, fmt.Errorf("decode lesson %s blocks: %w", u.ID, err)
	}
	return lessonDetail{
		lessonSummary:    h.summary(u, latest),
		Blocks:           lesson.Blocks,
		GeneratedSource:  u.GeneratedSource,
		CompiledArtifact: u.CompiledArtifact,
	}, nil
}
