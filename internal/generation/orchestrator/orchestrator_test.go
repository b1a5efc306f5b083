package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/decision"
	"github.com/yungbote/lessonforge/internal/generation/generationtest"
	"github.com/yungbote/lessonforge/internal/generation/lessonunit"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

var fullTrail = []types.Status{
	types.StatusSubmitted,
	types.StatusValidating,
	types.StatusValidated,
	types.StatusBlocksGenerating,
	types.StatusBlocksGenerated,
	types.StatusLessonsGenerating,
	types.StatusLessonsGenerated,
	types.StatusLessonsValidating,
	types.StatusLessonsValidated,
	types.StatusCompleted,
}

type harness struct {
	store    *generationtest.Memory
	provider *generationtest.Provider
	orch     *Orchestrator
	sup      *runtime.Supervisor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pol := policy.Default()
	store := generationtest.NewMemory()
	prov := generationtest.NewProvider()
	sup := runtime.NewSupervisor(logger.Nop()).Limit(KindLesson, pol.Lessons.MaxConcurrency)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	units := lessonunit.NewWorkflow(store, prov, staticcheck.New(pol.Imports), pol.Lessons.MaxRetries, logger.Nop())
	return &harness{
		store:    store,
		provider: prov,
		sup:      sup,
		orch:     New(store, prov, units, pol.Thresholds, sup, logger.Nop()),
	}
}

func (h *harness) outline(t *testing.T, text string) uuid.UUID {
	t.Helper()
	req, err := h.store.CreateOutlineRequest(context.Background(), "outline", text)
	require.NoError(t, err)
	return req.ID
}

func (h *harness) primaryColors(t *testing.T) uuid.UUID {
	h.provider.Scores = generationtest.SafeScores("colors", 5, 6)
	h.provider.Lessons = []types.Lesson{generationtest.TextLesson("Primary colors", 3)}
	return h.outline(t, "teach the three primary colors to ages 5-6")
}

func TestScenarioPrimaryColorsCompletes(t *testing.T) {
	h := newHarness(t)
	id := h.primaryColors(t)

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, fullTrail, h.store.Statuses(id))

	require.Len(t, out.Lessons, 1)
	assert.Equal(t, types.StatusCompleted, out.Lessons[0].Status)
	assert.Equal(t, 1, out.Lessons[0].Attempts)

	units, err := h.store.ListLessons(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, units, 1)
	lesson, err := units[0].Lesson()
	require.NoError(t, err)
	assert.Len(t, lesson.Blocks, 3)
	require.NotNil(t, units[0].CompiledArtifact)
	assert.Equal(t, 0, h.provider.CallCount("regenerate_lesson_source"))

	rec, err := h.store.LatestStatusOf(context.Background(), id, types.StatusValidated)
	require.NoError(t, err)
	var meta ValidatedMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	assert.Equal(t, types.AgeRange{Min: 5, Max: 6}, meta.Scores.TargetAgeRange)
	assert.True(t, meta.Decision.Accepted)
}

func TestScenarioUnsafeOutlineFails(t *testing.T) {
	h := newHarness(t)
	scores := generationtest.SafeScores("weapons", 10, 12)
	scores.SafetyScore = 0.1
	h.provider.Scores = scores
	id := h.outline(t, "an unsafe outline")

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	require.NotEmpty(t, out.Reasons)
	assert.Contains(t, strings.ToLower(strings.Join(out.Reasons, " ")), "safety")
	assert.Equal(t, []types.Status{types.StatusSubmitted, types.StatusValidating, types.StatusFailed}, h.store.Statuses(id))
	assert.Equal(t, 0, h.provider.CallCount("generate_blocks"))

	rec, err := h.store.LatestStatus(context.Background(), id)
	require.NoError(t, err)
	var meta FinalMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	require.NotNil(t, meta.Scores)
	assert.Contains(t, meta.Codes, decision.CodeSafetySevere)
}

func TestScenarioMixedBatchFails(t *testing.T) {
	h := newHarness(t)
	h.provider.Scores = generationtest.SafeScores("colors", 7, 9)
	h.provider.Lessons = []types.Lesson{
		generationtest.TextLesson("Red", 2),
		generationtest.TextLesson("Blue", 2),
	}
	h.provider.Sources["Red"] = []string{generationtest.BlockedSource, generationtest.BlockedSource, generationtest.ValidSource}
	h.provider.Sources["Blue"] = []string{generationtest.BlockedSource}
	id := h.outline(t, "colors")

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)

	byTitle := map[string]lessonunit.Outcome{}
	for _, l := range out.Lessons {
		byTitle[l.Title] = l
	}
	require.Len(t, byTitle, 2)
	assert.Equal(t, types.StatusCompleted, byTitle["Red"].Status)
	assert.Equal(t, 3, byTitle["Red"].Attempts)
	assert.Equal(t, types.StatusFailed, byTitle["Blue"].Status)
	assert.Equal(t, 3, byTitle["Blue"].Attempts)

	units, err := h.store.ListLessons(context.Background(), id)
	require.NoError(t, err)
	for _, u := range units {
		n, err := h.store.CountPriorAttempts(context.Background(), u.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 3)
		if u.Title == "Red" {
			assert.NotNil(t, u.CompiledArtifact, "completed lesson stays retrievable")
		}
	}
}

func TestBatchWithSystemErrorReportsError(t *testing.T) {
	h := newHarness(t)
	h.provider.Scores = generationtest.SafeScores("colors", 7, 9)
	h.provider.Lessons = []types.Lesson{
		generationtest.TextLesson("Red", 1),
		generationtest.TextLesson("Green", 1),
		generationtest.TextLesson("Blue", 1),
	}
	h.provider.Sources["Blue"] = []string{generationtest.BlockedSource}
	h.provider.SourceErr["Green"] = errors.New("upstream timeout")
	id := h.outline(t, "colors")

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	statuses := map[string]types.Status{}
	for _, l := range out.Lessons {
		statuses[l.Title] = l.Status
	}
	assert.Equal(t, types.StatusCompleted, statuses["Red"])
	assert.Equal(t, types.StatusError, statuses["Green"])
	assert.Equal(t, types.StatusFailed, statuses["Blue"])
}

func TestTooManyBlocksIsRejected(t *testing.T) {
	h := newHarness(t)
	h.provider.Scores = generationtest.SafeScores("history", 12, 14)
	h.provider.Lessons = []types.Lesson{
		generationtest.TextLesson("Rome", 51),
		generationtest.TextLesson("Greece", 50),
	}
	id := h.outline(t, "ancient history")

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	assert.Equal(t, string(types.StatusBlocksGenerating), out.Stage)
	assert.Contains(t, out.Error, "101 blocks")

	units, err := h.store.ListLessons(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, units)

	rec, err := h.store.LatestStatus(context.Background(), id)
	require.NoError(t, err)
	var meta FinalMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	assert.Equal(t, "contract_violation", meta.Kind)
}

func TestCheckLessons(t *testing.T) {
	require.NoError(t, CheckLessons([]types.Lesson{generationtest.TextLesson("A", 100)}))
	require.Error(t, CheckLessons(nil))
	require.Error(t, CheckLessons([]types.Lesson{generationtest.TextLesson("A", 101)}))
	require.Error(t, CheckLessons([]types.Lesson{{Title: "A"}}))
	require.Error(t, CheckLessons([]types.Lesson{{Title: "A", Blocks: types.Blocks{types.ImageBlock{Format: types.ImageSVG, Content: "<svg/>"}}}}))
}

func TestValidationProviderFailureIsError(t *testing.T) {
	h := newHarness(t)
	h.provider.ValidateErr = errors.New("connection reset")
	id := h.outline(t, "anything")

	out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	assert.Equal(t, string(types.StatusValidating), out.Stage)
	assert.Equal(t, []types.Status{types.StatusSubmitted, types.StatusValidating, types.StatusError}, h.store.Statuses(id))
}

func TestTerminalOutlineIsNoop(t *testing.T) {
	h := newHarness(t)
	id := h.primaryColors(t)
	first, err := h.orch.ProcessOutlineRequest(context.Background(), id)
	require.NoError(t, err)
	trail := h.store.Statuses(id)

	for i := 0; i < 3; i++ {
		again, err := h.orch.ProcessOutlineRequest(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, first.Status, again.Status)
		assert.Len(t, again.Lessons, len(first.Lessons))
	}
	assert.Equal(t, trail, h.store.Statuses(id))
	assert.Equal(t, 1, h.provider.CallCount("validate_outline"))
}

func TestUnknownOutlineIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.ProcessOutlineRequest(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestResumeFromEveryState(t *testing.T) {
	for k := 1; k < len(fullTrail); k++ {
		t.Run(string(fullTrail[k-1]), func(t *testing.T) {
			h := newHarness(t)
			id := h.primaryColors(t)
			_, err := h.orch.ProcessOutlineRequest(context.Background(), id)
			require.NoError(t, err)

			h.store.Truncate(id, k)
			out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, types.StatusCompleted, out.Status)
			assert.Equal(t, fullTrail, h.store.Statuses(id))
			assert.Equal(t, 1, h.provider.CallCount("generate_lesson_source"), "lesson work is not repeated")
		})
	}
}

func TestJoinRespawnsOrphanedUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	scores := generationtest.SafeScores("colors", 5, 6)
	lesson := generationtest.TextLesson("Yellow", 2)
	h.provider.Scores = scores
	id := h.outline(t, "colors")

	appendAll := func(status types.Status, meta any) {
		_, err := h.store.AppendStatus(ctx, types.EntityOutlineRequest, id, status, meta)
		require.NoError(t, err)
	}
	appendAll(types.StatusSubmitted, SubmittedMeta{Title: "outline"})
	appendAll(types.StatusValidating, struct{}{})
	appendAll(types.StatusValidated, ValidatedMeta{Scores: scores, Decision: decision.Decision{Accepted: true}})
	appendAll(types.StatusBlocksGenerating, BlocksRequestMeta{})
	appendAll(types.StatusBlocksGenerated, BlocksMeta{Lessons: []types.Lesson{lesson}, LessonCount: 1, BlockCount: 2})
	appendAll(types.StatusLessonsGenerating, SpawnRequestMeta{LessonCount: 1})
	unit, err := h.store.CreateLesson(ctx, id, 0, lesson)
	require.NoError(t, err)
	appendAll(types.StatusLessonsGenerated, SpawnMeta{LessonIDs: []uuid.UUID{unit.ID}})

	out, err := h.orch.ProcessOutlineRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 1, h.provider.CallCount("generate_lesson_source"))
	assert.Equal(t, 0, h.provider.CallCount("validate_outline"))
	assert.Equal(t, 0, h.provider.CallCount("generate_blocks"))
}

func TestSubmitRunsDetached(t *testing.T) {
	h := newHarness(t)
	id := h.primaryColors(t)

	handle, err := h.orch.Submit(id)
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))

	latest, err := h.store.LatestStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, latest.Status)
	_, inFlight := h.sup.Lookup(id)
	assert.False(t, inFlight)
}

func TestConcurrentInvocationsShareOneRun(t *testing.T) {
	h := newHarness(t)
	id := h.primaryColors(t)

	var wg sync.WaitGroup
	results := make([]types.Status, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.orch.ProcessOutlineRequest(context.Background(), id)
			if err == nil {
				results[i] = out.Status
			}
		}(i)
	}
	wg.Wait()
	for _, s := range results {
		assert.Equal(t, types.StatusCompleted, s)
	}
	assert.Equal(t, fullTrail, h.store.Statuses(id))
	assert.Equal(t, 1, h.provider.CallCount("validate_outline"))
}
