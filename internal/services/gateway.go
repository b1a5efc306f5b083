package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	genrepos "github.com/yungbote/lessonforge/internal/data/repos/generation"
	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// ArtifactStore mirrors compiled artifacts outside the database.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	PublicURL(name string) string
}

// Gateway is the persistence gateway for the generation pipeline: the
// append-only status trail plus the current-value lesson fields.
type Gateway struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     genrepos.Repos
	notifier  StatusNotifier
	artifacts ArtifactStore
}

// NewGateway wires the gateway. notifier and artifacts may be nil.
func NewGateway(db *gorm.DB, baseLog *logger.Logger, repos genrepos.Repos, notifier StatusNotifier, artifacts ArtifactStore) *Gateway {
	return &Gateway{
		db:        db,
		log:       baseLog.With("service", "PersistenceGateway"),
		repos:     repos,
		notifier:  notifier,
		artifacts: artifacts,
	}
}

func dbc(ctx context.Context) dbctx.Context { return dbctx.Context{Ctx: ctx} }

func (g *Gateway) CreateOutlineRequest(ctx context.Context, title, outlineText string) (*types.OutlineRequest, error) {
	text := strings.TrimSpace(outlineText)
	if text == "" {
		return nil, fmt.Errorf("%w: outline text is required", apperr.ErrInvalidArgument)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = deriveTitle(text)
	}
	return g.repos.Outlines.Create(dbc(ctx), &types.OutlineRequest{Title: title, OutlineText: text})
}

func deriveTitle(text string) string {
	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if r := []rune(line); len(r) > 80 {
		line = strings.TrimSpace(string(r[:80]))
	}
	return line
}

func (g *Gateway) FindOutlineRequest(ctx context.Context, id uuid.UUID) (*types.OutlineRequest, error) {
	return g.repos.Outlines.GetByID(dbc(ctx), id)
}

func (g *Gateway) ListOutlineRequests(ctx context.Context, limit int) ([]*types.OutlineRequest, error) {
	return g.repos.Outlines.List(dbc(ctx), limit)
}

func (g *Gateway) ListUnfinishedOutlines(ctx context.Context, limit int) ([]*types.OutlineRequest, error) {
	return g.repos.Outlines.ListUnfinished(dbc(ctx), limit)
}

// AppendStatus appends one record to the entity's trail and notifies
// subscribers. A second terminal record yields ErrDuplicateTerminal.
func (g *Gateway) AppendStatus(ctx context.Context, entity types.EntityType, entityID uuid.UUID, status types.Status, metadata any) (*types.StatusRecord, error) {
	if !status.ValidFor(entity) {
		return nil, fmt.Errorf("%w: status %q for %s", apperr.ErrInvalidArgument, status, entity)
	}
	raw := []byte("{}")
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode status metadata: %w", err)
		}
		raw = b
	}
	rec, err := g.repos.Statuses.Append(dbc(ctx), &types.StatusRecord{
		EntityType: entity,
		EntityID:   entityID,
		Status:     status,
		Metadata:   datatypes.JSON(raw),
	})
	if err != nil {
		return nil, err
	}
	observability.StatusAppends.WithLabelValues(string(entity), string(status)).Inc()
	g.log.Debug("status appended", "entity_type", entity, "entity_id", entityID, "seq", rec.Seq, "status", status)

	if g.notifier != nil {
		outlineID := entityID
		if entity == types.EntityLessonUnit {
			if u, err := g.repos.Lessons.GetByID(dbc(ctx), entityID); err == nil && u != nil {
				outlineID = u.OutlineRequestID
			}
		}
		g.notifier.StatusAppended(ctx, outlineID, rec)
	}
	return rec, nil
}

func (g *Gateway) LatestStatus(ctx context.Context, entityID uuid.UUID) (*types.StatusRecord, error) {
	return g.repos.Statuses.Latest(dbc(ctx), entityID)
}

func (g *Gateway) LatestStatusOf(ctx context.Context, entityID uuid.UUID, status types.Status) (*types.StatusRecord, error) {
	return g.repos.Statuses.LatestWithStatus(dbc(ctx), entityID, status)
}

func (g *Gateway) LatestStatuses(ctx context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]*types.StatusRecord, error) {
	return g.repos.Statuses.LatestForEntities(dbc(ctx), entityIDs)
}

func (g *Gateway) ListStatus(ctx context.Context, entityID uuid.UUID) ([]*types.StatusRecord, error) {
	return g.repos.Statuses.ListByEntity(dbc(ctx), entityID)
}

// CreateLesson is idempotent on (outlineID, index).
func (g *Gateway) CreateLesson(ctx context.Context, outlineID uuid.UUID, index int, lesson types.Lesson) (*types.LessonUnit, error) {
	blocks, err := json.Marshal(lesson.Blocks)
	if err != nil {
		return nil, fmt.Errorf("encode blocks: %w", err)
	}
	return g.repos.Lessons.CreateOrGet(dbc(ctx), &types.LessonUnit{
		OutlineRequestID: outlineID,
		Index:            index,
		Title:            lesson.Title,
		Blocks:           datatypes.JSON(blocks),
	})
}

func (g *Gateway) GetLesson(ctx context.Context, id uuid.UUID) (*types.LessonUnit, error) {
	return g.repos.Lessons.GetByID(dbc(ctx), id)
}

func (g *Gateway) ListLessons(ctx context.Context, outlineID uuid.UUID) ([]*types.LessonUnit, error) {
	return g.repos.Lessons.ListByOutline(dbc(ctx), outlineID)
}

// UpdateGeneratedSource writes the source and the attempt that produced it
// in one update so resume can tell an unrecorded regeneration apart.
func (g *Gateway) UpdateGeneratedSource(ctx context.Context, lessonID uuid.UUID, source string, attempt int) error {
	return g.repos.Lessons.UpdateFields(dbc(ctx), lessonID, map[string]interface{}{
		"generated_source": source,
		"source_attempt":   attempt,
	})
}

// UpdateCompiledArtifact stores the artifact and, when an artifact store is
// configured, mirrors it. Mirror failures are logged, not returned.
func (g *Gateway) UpdateCompiledArtifact(ctx context.Context, lessonID uuid.UUID, artifact string) error {
	if err := g.repos.Lessons.UpdateFields(dbc(ctx), lessonID, map[string]interface{}{
		"compiled_artifact": artifact,
	}); err != nil {
		return err
	}
	if g.artifacts == nil {
		return nil
	}
	u, err := g.repos.Lessons.GetByID(dbc(ctx), lessonID)
	if err != nil || u == nil {
		g.log.Warn("artifact mirror skipped; lesson lookup failed", "lesson_id", lessonID, "error", err)
		return nil
	}
	name := ArtifactName(u.OutlineRequestID, u.ID)
	if err := g.artifacts.Put(ctx, name, []byte(artifact), "application/javascript"); err != nil {
		g.log.Warn("artifact mirror failed", "lesson_id", lessonID, "key", name, "error", err)
	}
	return nil
}

// ArtifactURL returns the mirrored artifact URL, or "" without a store.
func (g *Gateway) ArtifactURL(u *types.LessonUnit) string {
	if g.artifacts == nil || u == nil || u.CompiledArtifact == nil {
		return ""
	}
	return g.artifacts.PublicURL(ArtifactName(u.OutlineRequestID, u.ID))
}

func ArtifactName(outlineID, lessonID uuid.UUID) string {
	return fmt.Sprintf("lessons/%s/%s.js", outlineID, lessonID)
}

func (g *Gateway) RecordAttempt(ctx context.Context, lessonID uuid.UUID, attempt int) error {
	return g.repos.Lessons.UpdateFields(dbc(ctx), lessonID, map[string]interface{}{
		"validation_attempt_count": attempt,
	})
}

// CountPriorAttempts counts the unit's validating records, which is the
// authoritative attempt count across restarts.
func (g *Gateway) CountPriorAttempts(ctx context.Context, lessonID uuid.UUID) (int, error) {
	return g.repos.Statuses.CountWithStatus(dbc(ctx), lessonID, types.StatusValidating)
}
