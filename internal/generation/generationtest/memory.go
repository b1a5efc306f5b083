// Package generationtest provides in-memory doubles for pipeline tests.
package generationtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
)

// Memory is an in-memory persistence gateway with the same append rules as
// the database: per-entity seq and at most one terminal record per entity.
type Memory struct {
	mu       sync.Mutex
	outlines map[uuid.UUID]*types.OutlineRequest
	lessons  map[uuid.UUID]*types.LessonUnit
	records  map[uuid.UUID][]*types.StatusRecord

	// FailAppend, when set, is consulted before every append.
	FailAppend func(entityID uuid.UUID, status types.Status) error
}

func NewMemory() *Memory {
	return &Memory{
		outlines: map[uuid.UUID]*types.OutlineRequest{},
		lessons:  map[uuid.UUID]*types.LessonUnit{},
		records:  map[uuid.UUID][]*types.StatusRecord{},
	}
}

func (m *Memory) CreateOutlineRequest(ctx context.Context, title, outlineText string) (*types.OutlineRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := &types.OutlineRequest{ID: uuid.New(), Title: title, OutlineText: outlineText, CreatedAt: time.Now().UTC()}
	m.outlines[req.ID] = req
	cp := *req
	return &cp, nil
}

func (m *Memory) FindOutlineRequest(ctx context.Context, id uuid.UUID) (*types.OutlineRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.outlines[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (m *Memory) AppendStatus(ctx context.Context, entity types.EntityType, entityID uuid.UUID, status types.Status, metadata any) (*types.StatusRecord, error) {
	if !status.ValidFor(entity) {
		return nil, fmt.Errorf("%w: status %q for %s", apperr.ErrInvalidArgument, status, entity)
	}
	raw := []byte("{}")
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if m.FailAppend != nil {
		if err := m.FailAppend(entityID, status); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.records[entityID]
	if status.IsTerminal() {
		for _, r := range existing {
			if r.Status.IsTerminal() {
				return nil, apperr.ErrDuplicateTerminal
			}
		}
	}
	rec := &types.StatusRecord{
		ID:         uuid.New(),
		EntityType: entity,
		EntityID:   entityID,
		Seq:        int64(len(existing) + 1),
		Status:     status,
		Metadata:   datatypes.JSON(raw),
		CreatedAt:  time.Now().UTC(),
	}
	m.records[entityID] = append(existing, rec)
	cp := *rec
	return &cp, nil
}

func (m *Memory) LatestStatus(ctx context.Context, entityID uuid.UUID) (*types.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[entityID]
	if len(recs) == 0 {
		return nil, nil
	}
	cp := *recs[len(recs)-1]
	return &cp, nil
}

func (m *Memory) LatestStatusOf(ctx context.Context, entityID uuid.UUID, status types.Status) (*types.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[entityID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Status == status {
			cp := *recs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListStatus(ctx context.Context, entityID uuid.UUID) ([]*types.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.StatusRecord, 0, len(m.records[entityID]))
	for _, r := range m.records[entityID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Statuses returns the status sequence recorded for an entity.
func (m *Memory) Statuses(entityID uuid.UUID) []types.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Status, 0, len(m.records[entityID]))
	for _, r := range m.records[entityID] {
		out = append(out, r.Status)
	}
	return out
}

// Truncate drops records after the first n, simulating a crash that lost
// the tail of a run.
func (m *Memory) Truncate(entityID uuid.UUID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < len(m.records[entityID]) {
		m.records[entityID] = m.records[entityID][:n]
	}
}

func (m *Memory) CreateLesson(ctx context.Context, outlineID uuid.UUID, index int, lesson types.Lesson) (*types.LessonUnit, error) {
	blocks, err := json.Marshal(lesson.Blocks)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.lessons {
		if u.OutlineRequestID == outlineID && u.Index == index {
			cp := *u
			return &cp, nil
		}
	}
	now := time.Now().UTC()
	u := &types.LessonUnit{
		ID:               uuid.New(),
		OutlineRequestID: outlineID,
		Index:            index,
		Title:            lesson.Title,
		Blocks:           datatypes.JSON(blocks),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.lessons[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) GetLesson(ctx context.Context, id uuid.UUID) (*types.LessonUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.lessons[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) ListLessons(ctx context.Context, outlineID uuid.UUID) ([]*types.LessonUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*types.LessonUnit{}
	for _, u := range m.lessons {
		if u.OutlineRequestID == outlineID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) UpdateGeneratedSource(ctx context.Context, lessonID uuid.UUID, source string, attempt int) error {
	return m.update(lessonID, func(u *types.LessonUnit) {
		u.GeneratedSource = source
		u.SourceAttempt = attempt
	})
}

func (m *Memory) UpdateCompiledArtifact(ctx context.Context, lessonID uuid.UUID, artifact string) error {
	return m.update(lessonID, func(u *types.LessonUnit) { u.CompiledArtifact = &artifact })
}

func (m *Memory) RecordAttempt(ctx context.Context, lessonID uuid.UUID, attempt int) error {
	return m.update(lessonID, func(u *types.LessonUnit) { u.ValidationAttemptCount = attempt })
}

func (m *Memory) CountPriorAttempts(ctx context.Context, lessonID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records[lessonID] {
		if r.Status == types.StatusValidating {
			n++
		}
	}
	return n, nil
}

func (m *Memory) update(id uuid.UUID, fn func(u *types.LessonUnit)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.lessons[id]
	if !ok {
		return apperr.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}
