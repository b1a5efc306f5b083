package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	genrepos "github.com/yungbote/lessonforge/internal/data/repos/generation"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/generationtest"
	"github.com/yungbote/lessonforge/internal/generation/lessonunit"
	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
	"github.com/yungbote/lessonforge/internal/realtime/bus"
)

type memArtifacts struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (m *memArtifacts) Put(ctx context.Context, name string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = map[string][]byte{}
	}
	m.objs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memArtifacts) PublicURL(name string) string { return "https://cdn.test/" + name }

type recorder struct {
	mu     sync.Mutex
	events []bus.StatusEvent
}

func (r *recorder) add(ev bus.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []bus.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.StatusEvent(nil), r.events...)
}

func newGateway(t *testing.T) (*Gateway, *memArtifacts, *recorder) {
	t.Helper()
	gdb := testutil.DB(t)
	log := logger.Nop()
	b := bus.NewMemoryBus()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, b.StartForwarder(ctx, rec.add))
	arts := &memArtifacts{}
	return NewGateway(gdb, log, genrepos.New(gdb, log), NewStatusNotifier(b, log), arts), arts, rec
}

func TestGatewayCreateOutlineRequest(t *testing.T) {
	g, _, _ := newGateway(t)
	ctx := context.Background()

	_, err := g.CreateOutlineRequest(ctx, "", "   ")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	req, err := g.CreateOutlineRequest(ctx, "", "Primary colors for ages 5-6\nred, yellow, blue")
	require.NoError(t, err)
	assert.Equal(t, "Primary colors for ages 5-6", req.Title)

	found, err := g.FindOutlineRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, req.OutlineText, found.OutlineText)

	missing, err := g.FindOutlineRequest(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGatewayAppendStatusRules(t *testing.T) {
	g, _, rec := newGateway(t)
	ctx := context.Background()
	req, err := g.CreateOutlineRequest(ctx, "t", "outline")
	require.NoError(t, err)

	_, err = g.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusCompiling, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	first, err := g.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusSubmitted, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Seq)
	assert.JSONEq(t, `{}`, string(first.Metadata))

	done, err := g.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusError, map[string]string{"stage": "validate"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, done.Seq)

	_, err = g.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusCompleted, nil)
	require.ErrorIs(t, err, apperr.ErrDuplicateTerminal)

	latest, err := g.LatestStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, latest.Status)

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, req.ID, events[1].OutlineID)
	assert.Equal(t, "error", events[1].Status)

	unfinished, err := g.ListUnfinishedOutlines(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unfinished)
}

func TestGatewayLessonFields(t *testing.T) {
	g, arts, _ := newGateway(t)
	ctx := context.Background()
	req, err := g.CreateOutlineRequest(ctx, "t", "outline")
	require.NoError(t, err)

	lesson := generationtest.TextLesson("Red", 2)
	u, err := g.CreateLesson(ctx, req.ID, 0, lesson)
	require.NoError(t, err)
	again, err := g.CreateLesson(ctx, req.ID, 0, lesson)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	got, err := u.Lesson()
	require.NoError(t, err)
	assert.Equal(t, lesson.Title, got.Title)
	assert.Len(t, got.Blocks, 2)

	require.NoError(t, g.UpdateGeneratedSource(ctx, u.ID, generationtest.ValidSource, 2))
	require.NoError(t, g.RecordAttempt(ctx, u.ID, 2))
	require.NoError(t, g.UpdateCompiledArtifact(ctx, u.ID, "compiled()"))
	require.ErrorIs(t, g.RecordAttempt(ctx, uuid.New(), 1), apperr.ErrNotFound)

	stored, err := g.GetLesson(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, generationtest.ValidSource, stored.GeneratedSource)
	assert.Equal(t, 2, stored.SourceAttempt)
	assert.Equal(t, 2, stored.ValidationAttemptCount)
	require.NotNil(t, stored.CompiledArtifact)
	assert.Equal(t, "compiled()", *stored.CompiledArtifact)

	name := ArtifactName(req.ID, u.ID)
	assert.Equal(t, []byte("compiled()"), arts.objs[name])
	assert.Equal(t, "https://cdn.test/"+name, g.ArtifactURL(stored))

	for i := 0; i < 2; i++ {
		_, err := g.AppendStatus(ctx, types.EntityLessonUnit, u.ID, types.StatusValidating, lessonunit.AttemptMeta{Attempt: i + 1})
		require.NoError(t, err)
	}
	n, err := g.CountPriorAttempts(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGatewayRunsPrimaryColorsEndToEnd(t *testing.T) {
	g, arts, rec := newGateway(t)
	ctx := context.Background()
	pol := policy.Default()

	prov := generationtest.NewProvider()
	prov.Scores = generationtest.SafeScores("colors", 5, 6)
	prov.Lessons = []types.Lesson{generationtest.TextLesson("Primary colors", 3)}

	sup := runtime.NewSupervisor(logger.Nop()).Limit(orchestrator.KindLesson, pol.Lessons.MaxConcurrency)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(sctx)
	})
	units := lessonunit.NewWorkflow(g, prov, staticcheck.New(pol.Imports), pol.Lessons.MaxRetries, logger.Nop())
	orch := orchestrator.New(g, prov, units, pol.Thresholds, sup, logger.Nop())

	req, err := g.CreateOutlineRequest(ctx, "", "teach the three primary colors to ages 5-6")
	require.NoError(t, err)

	out, err := orch.ProcessOutlineRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	require.Len(t, out.Lessons, 1)
	assert.Equal(t, 1, out.Lessons[0].Attempts)

	trail, err := g.ListStatus(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, types.StatusSubmitted, trail[0].Status)
	assert.Equal(t, types.StatusCompleted, trail[len(trail)-1].Status)
	for i, r := range trail {
		assert.EqualValues(t, i+1, r.Seq)
	}

	lessons, err := g.ListLessons(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	require.NotNil(t, lessons[0].CompiledArtifact)
	assert.Contains(t, arts.objs, ArtifactName(req.ID, lessons[0].ID))

	lessonTrail, err := g.ListStatus(ctx, lessons[0].ID)
	require.NoError(t, err)
	var statuses []types.Status
	for _, r := range lessonTrail {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []types.Status{
		types.StatusGenerated,
		types.StatusValidating,
		types.StatusCompiling,
		types.StatusCompleted,
	}, statuses)

	for _, ev := range rec.snapshot() {
		assert.Equal(t, req.ID, ev.OutlineID, "event %s/%s", ev.EntityType, ev.Status)
	}
}
