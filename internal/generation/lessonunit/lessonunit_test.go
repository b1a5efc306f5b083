package lessonunit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/compiler"
	"github.com/yungbote/lessonforge/internal/generation/generationtest"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type fixture struct {
	store    *generationtest.Memory
	provider *generationtest.Provider
	wf       *Workflow
	unit     *types.LessonUnit
	lc       types.LessonContext
}

func newFixture(t *testing.T, maxRetries int, sources ...string) *fixture {
	t.Helper()
	store := generationtest.NewMemory()
	prov := generationtest.NewProvider()
	lesson := generationtest.TextLesson("Colors", 3)
	if len(sources) > 0 {
		prov.Sources[lesson.Title] = sources
	}
	unit, err := store.CreateLesson(context.Background(), uuid.New(), 0, lesson)
	require.NoError(t, err)
	validator := staticcheck.New(policy.Default().Imports)
	return &fixture{
		store:    store,
		provider: prov,
		wf:       NewWorkflow(store, prov, validator, maxRetries, logger.Nop()),
		unit:     unit,
		lc:       types.LessonContext{Topic: "colors", AgeRange: types.AgeRange{Min: 5, Max: 6}, Complexity: "beginner"},
	}
}

func (f *fixture) reload(t *testing.T) *types.LessonUnit {
	t.Helper()
	u, err := f.store.GetLesson(context.Background(), f.unit.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func countStatus(statuses []types.Status, s types.Status) int {
	n := 0
	for _, v := range statuses {
		if v == s {
			n++
		}
	}
	return n
}

func TestRunCompletesOnFirstAttempt(t *testing.T) {
	f := newFixture(t, 2)
	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []types.Status{
		types.StatusGenerated, types.StatusValidating, types.StatusCompiling, types.StatusCompleted,
	}, f.store.Statuses(f.unit.ID))

	u := f.reload(t)
	require.NotNil(t, u.CompiledArtifact)
	assert.Contains(t, *u.CompiledArtifact, ".createElement(")
	assert.Equal(t, 1, u.ValidationAttemptCount)
	assert.Equal(t, 0, f.provider.CallCount("regenerate_lesson_source"))
}

func TestRunRegeneratesUntilValid(t *testing.T) {
	f := newFixture(t, 2, generationtest.BlockedSource, generationtest.BlockedSource, generationtest.ValidSource)
	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []int{2, 3}, f.provider.RegenAttempt["Colors"])

	statuses := f.store.Statuses(f.unit.ID)
	assert.Equal(t, 3, countStatus(statuses, types.StatusValidating))

	rec, err := f.store.LatestStatusOf(context.Background(), f.unit.ID, types.StatusGenerated)
	require.NoError(t, err)
	var meta GeneratedMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	assert.Equal(t, 3, meta.Attempt)
	require.NotEmpty(t, meta.PreviousErrors)
	assert.Equal(t, "blocked-import", meta.PreviousErrors[0].Code)
}

func TestRunFailsWhenAttemptsExhausted(t *testing.T) {
	f := newFixture(t, 2, generationtest.BlockedSource)
	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, types.CategoryImport, out.Errors[0].Category)
	assert.Equal(t, 2, f.provider.CallCount("regenerate_lesson_source"))
	assert.Equal(t, 3, countStatus(f.store.Statuses(f.unit.ID), types.StatusValidating))
	assert.Nil(t, f.reload(t).CompiledArtifact)
}

func TestRunWithoutRetriesMakesOneAttempt(t *testing.T) {
	f := newFixture(t, 0, generationtest.BlockedSource)
	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 0, f.provider.CallCount("regenerate_lesson_source"))
}

func TestRunRecordsProviderFailureAsError(t *testing.T) {
	f := newFixture(t, 2, generationtest.BlockedSource)
	wf := f.wf
	wf.provider = &regenFailer{Provider: f.provider, err: errors.New("upstream unavailable")}

	out, err := wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	assert.Equal(t, StageRegenerate, out.Stage)
	assert.Contains(t, out.Error, "upstream unavailable")

	rec, err := f.store.LatestStatus(context.Background(), f.unit.ID)
	require.NoError(t, err)
	var meta TerminalMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	assert.Equal(t, "regenerate", meta.Stage)
	assert.Equal(t, "system_failure", meta.Kind)
}

type regenFailer struct {
	*generationtest.Provider
	err error
}

func (r *regenFailer) RegenerateLessonSource(ctx context.Context, original string, errs []types.ValidationError, title string, blocks types.Blocks, attempt int) (string, error) {
	return "", r.err
}

func TestRunRecordsCompilerFaultAsError(t *testing.T) {
	f := newFixture(t, 2)
	f.wf.compile = func(string) (compiler.Artifact, error) {
		return compiler.Artifact{}, errors.New("transform crashed")
	}
	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	assert.Equal(t, StageCompile, out.Stage)
	assert.Equal(t, []types.Status{
		types.StatusGenerated, types.StatusValidating, types.StatusCompiling, types.StatusError,
	}, f.store.Statuses(f.unit.ID))
}

func TestRunOnTerminalUnitIsNoop(t *testing.T) {
	f := newFixture(t, 2)
	first, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	before := f.store.Statuses(f.unit.ID)

	again, err := f.wf.Run(context.Background(), f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, first.Status, again.Status)
	assert.Equal(t, first.Attempts, again.Attempts)
	assert.Equal(t, before, f.store.Statuses(f.unit.ID))
	assert.Equal(t, 1, f.provider.CallCount("generate_lesson_source"))
}

func TestResumeDerivesAttemptCountAfterCrash(t *testing.T) {
	f := newFixture(t, 2, generationtest.BlockedSource, generationtest.BlockedSource, generationtest.ValidSource)
	crash := errors.New("process killed")
	crashed := false
	generated := 0
	f.store.FailAppend = func(_ uuid.UUID, status types.Status) error {
		if crashed {
			return crash
		}
		if status == types.StatusGenerated {
			generated++
			if generated == 2 {
				crashed = true
				return crash
			}
		}
		return nil
	}

	_, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.Error(t, err, "nothing could be recorded after the crash")

	statuses := f.store.Statuses(f.unit.ID)
	prior, err := f.store.CountPriorAttempts(context.Background(), f.unit.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.Status{types.StatusGenerated, types.StatusValidating}, statuses)
	assert.Equal(t, 1, prior)
	assert.Equal(t, f.reload(t).ValidationAttemptCount, prior)

	f.store.FailAppend = nil
	out, err := f.wf.Run(context.Background(), f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Attempts)

	// The stored regeneration was attempt 2; it is validated as such, not
	// under attempt 1.
	assert.Equal(t, []int{2, 3}, f.provider.RegenAttempt["Colors"])
	after := f.store.Statuses(f.unit.ID)
	assert.Equal(t, 3, countStatus(after, types.StatusValidating))
	assert.Equal(t, 3, countStatus(after, types.StatusGenerated))
}

// crashOnAppend fails the nth append of status and everything after it.
func crashOnAppend(f *fixture, status types.Status, nth int) {
	crash := errors.New("process killed")
	crashed := false
	seen := 0
	f.store.FailAppend = func(_ uuid.UUID, s types.Status) error {
		if crashed {
			return crash
		}
		if s == status {
			seen++
			if seen == nth {
				crashed = true
				return crash
			}
		}
		return nil
	}
}

func generationCalls(p *generationtest.Provider) int {
	return p.CallCount("generate_lesson_source") + p.CallCount("regenerate_lesson_source")
}

func TestCrashBeforeGeneratedRecordKeepsAttemptBound(t *testing.T) {
	f := newFixture(t, 2, generationtest.BlockedSource)
	crashOnAppend(f, types.StatusGenerated, 2)

	_, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.Error(t, err)
	assert.Equal(t, 2, generationCalls(f.provider))

	f.store.FailAppend = nil
	out, err := f.wf.Run(context.Background(), f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)

	assert.Equal(t, f.wf.MaxAttempts(), generationCalls(f.provider))
	assert.Equal(t, []int{2, 3}, f.provider.RegenAttempt["Colors"])
	assert.Equal(t, []types.Status{
		types.StatusGenerated, types.StatusValidating,
		types.StatusGenerated, types.StatusValidating,
		types.StatusGenerated, types.StatusValidating,
		types.StatusFailed,
	}, f.store.Statuses(f.unit.ID))

	assert.Equal(t, 3, f.reload(t).SourceAttempt)

	rec, err := f.store.LatestStatusOf(context.Background(), f.unit.ID, types.StatusValidating)
	require.NoError(t, err)
	var am AttemptMeta
	require.NoError(t, rec.DecodeMetadata(&am))
	assert.Equal(t, 3, am.Attempt)
}

func TestResumeMidValidationReusesAttempt(t *testing.T) {
	f := newFixture(t, 2)
	crashOnAppend(f, types.StatusCompiling, 1)

	_, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.Error(t, err)
	assert.Equal(t, []types.Status{types.StatusGenerated, types.StatusValidating}, f.store.Statuses(f.unit.ID))

	f.store.FailAppend = nil
	out, err := f.wf.Run(context.Background(), f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, generationCalls(f.provider))
	assert.Equal(t, []types.Status{
		types.StatusGenerated, types.StatusValidating, types.StatusCompiling, types.StatusCompleted,
	}, f.store.Statuses(f.unit.ID))
}

func TestResumeRecordsLostFirstGeneration(t *testing.T) {
	f := newFixture(t, 2)
	crashOnAppend(f, types.StatusGenerated, 1)

	_, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.Error(t, err)
	assert.Empty(t, f.store.Statuses(f.unit.ID))

	f.store.FailAppend = nil
	out, err := f.wf.Run(context.Background(), f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, generationCalls(f.provider))

	rec, err := f.store.LatestStatusOf(context.Background(), f.unit.ID, types.StatusGenerated)
	require.NoError(t, err)
	var meta GeneratedMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	assert.True(t, meta.Recovered)
	assert.Equal(t, 1, meta.Attempt)
}

func TestResumeFromCompiling(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateGeneratedSource(ctx, f.unit.ID, generationtest.ValidSource, 1))
	for _, s := range []types.Status{types.StatusGenerated, types.StatusValidating, types.StatusCompiling} {
		_, err := f.store.AppendStatus(ctx, types.EntityLessonUnit, f.unit.ID, s, AttemptMeta{Attempt: 1})
		require.NoError(t, err)
	}

	out, err := f.wf.Run(ctx, f.reload(t), f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 0, f.provider.CallCount("generate_lesson_source"))
	assert.Equal(t, 1, countStatus(f.store.Statuses(f.unit.ID), types.StatusCompiling))
}

// firstSourceMistyped fails type checking for the first source it sees.
type firstSourceMistyped struct {
	first string
	err   error
}

func (c *firstSourceMistyped) TypeCheck(ctx context.Context, source string) ([]types.ValidationError, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.first == "" {
		c.first = source
	}
	if source != c.first {
		return nil, nil
	}
	return []types.ValidationError{{
		Category: types.CategoryCompile,
		Severity: types.SeverityError,
		Line:     4,
		Column:   9,
		Message:  "Type 'string' is not assignable to type 'number'.",
		Code:     "TS2322",
	}}, nil
}

func TestRunRegeneratesOnTypeErrors(t *testing.T) {
	f := newFixture(t, 2, generationtest.ValidSource, generationtest.ValidSource+"\n// fixed\n")
	f.wf.validator = staticcheck.New(policy.Default().Imports, staticcheck.WithTypeChecker(&firstSourceMistyped{}))

	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []int{2}, f.provider.RegenAttempt["Colors"])

	rec, err := f.store.LatestStatusOf(context.Background(), f.unit.ID, types.StatusGenerated)
	require.NoError(t, err)
	var meta GeneratedMeta
	require.NoError(t, rec.DecodeMetadata(&meta))
	require.Len(t, meta.PreviousErrors, 1)
	assert.Equal(t, "TS2322", meta.PreviousErrors[0].Code)
}

func TestRunRecordsTypeCheckerFailureAsError(t *testing.T) {
	f := newFixture(t, 2)
	f.wf.validator = staticcheck.New(policy.Default().Imports,
		staticcheck.WithTypeChecker(&firstSourceMistyped{err: errors.New("tsc: signal: killed")}))

	out, err := f.wf.Run(context.Background(), f.unit, f.lc)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, out.Status)
	assert.Equal(t, StageValidate, out.Stage)
	assert.Equal(t, []types.Status{
		types.StatusGenerated, types.StatusValidating, types.StatusError,
	}, f.store.Statuses(f.unit.ID))
}
