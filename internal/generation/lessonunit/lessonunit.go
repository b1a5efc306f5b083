// Package lessonunit runs the generate, validate, regenerate loop for one
// lesson and drives it to completed, failed or error.
package lessonunit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/compiler"
	"github.com/yungbote/lessonforge/internal/generation/provider"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/observability"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// Store is the slice of the persistence gateway a lesson unit needs.
type Store interface {
	AppendStatus(ctx context.Context, entity types.EntityType, entityID uuid.UUID, status types.Status, metadata any) (*types.StatusRecord, error)
	LatestStatus(ctx context.Context, entityID uuid.UUID) (*types.StatusRecord, error)
	// UpdateGeneratedSource stores source together with the generation
	// attempt that produced it.
	UpdateGeneratedSource(ctx context.Context, lessonID uuid.UUID, source string, attempt int) error
	UpdateCompiledArtifact(ctx context.Context, lessonID uuid.UUID, artifact string) error
	RecordAttempt(ctx context.Context, lessonID uuid.UUID, attempt int) error
	CountPriorAttempts(ctx context.Context, lessonID uuid.UUID) (int, error)
}

type Validator interface {
	Check(ctx context.Context, source string) (staticcheck.Result, error)
}

// Stages named in error metadata.
const (
	StageLoad       = "load"
	StageGenerate   = "generate"
	StageValidate   = "validate"
	StageRegenerate = "regenerate"
	StageCompile    = "compile"
	StagePersist    = "persist"
)

// Outcome is the terminal result of one lesson unit.
type Outcome struct {
	LessonID uuid.UUID               `json:"lesson_id"`
	Index    int                     `json:"index"`
	Title    string                  `json:"title"`
	Status   types.Status            `json:"status"`
	Attempts int                     `json:"attempts"`
	Errors   []types.ValidationError `json:"errors,omitempty"`
	Stage    string                  `json:"stage,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Status record metadata, one shape per lesson status.
type (
	GeneratedMeta struct {
		Attempt        int                     `json:"attempt"`
		Bytes          int                     `json:"bytes"`
		PreviousErrors []types.ValidationError `json:"previous_errors,omitempty"`
		Recovered      bool                    `json:"recovered,omitempty"`
	}
	AttemptMeta struct {
		Attempt int `json:"attempt"`
	}
	TerminalMeta struct {
		Attempts int                     `json:"attempts"`
		Bytes    int                     `json:"bytes,omitempty"`
		Errors   []types.ValidationError `json:"errors,omitempty"`
		Warnings []types.ValidationError `json:"warnings,omitempty"`
		Stage    string                  `json:"stage,omitempty"`
		Kind     string                  `json:"kind,omitempty"`
		Error    string                  `json:"error,omitempty"`
	}
)

type Workflow struct {
	store       Store
	provider    provider.Provider
	validator   Validator
	compile     func(source string) (compiler.Artifact, error)
	maxAttempts int
	log         *logger.Logger
}

// NewWorkflow builds a workflow allowing maxRetries regenerations, so at most
// maxRetries+1 validation attempts.
func NewWorkflow(store Store, prov provider.Provider, validator Validator, maxRetries int, baseLog *logger.Logger) *Workflow {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Workflow{
		store:       store,
		provider:    prov,
		validator:   validator,
		compile:     compiler.Compile,
		maxAttempts: maxRetries + 1,
		log:         baseLog.With("component", "LessonUnitWorkflow"),
	}
}

func (w *Workflow) MaxAttempts() int { return w.maxAttempts }

// fault is a system failure attributed to a stage.
type fault struct {
	stage   string
	attempt int
	err     error
}

func (f *fault) Error() string { return fmt.Sprintf("%s: %v", f.stage, f.err) }
func (f *fault) Unwrap() error { return f.err }

// Run drives unit to a terminal status, resuming from its latest status
// record. A unit already terminal returns its recorded outcome. The returned
// error is non-nil only when the outcome could not be recorded.
func (w *Workflow) Run(ctx context.Context, unit *types.LessonUnit, lc types.LessonContext) (Outcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "lesson_unit.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("lesson.id", unit.ID.String()),
		attribute.Int("lesson.index", unit.Index),
	)

	log := w.log.With("lesson_id", unit.ID, "lesson_index", unit.Index)
	latest, err := w.store.LatestStatus(ctx, unit.ID)
	if err != nil {
		return w.recordFault(ctx, log, unit, &fault{stage: StageLoad, err: err})
	}
	if latest != nil && latest.Status.IsTerminal() {
		log.Debug("Lesson unit already terminal", "status", latest.Status)
		return OutcomeFromRecord(unit, latest), nil
	}

	out, err := w.drive(ctx, log, unit, lc, latest)
	if err != nil {
		var f *fault
		if !errors.As(err, &f) {
			f = &fault{stage: StagePersist, err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, f.stage)
		return w.recordFault(ctx, log, unit, f)
	}
	span.SetAttributes(attribute.String("lesson.status", string(out.Status)))
	return out, nil
}

func (w *Workflow) drive(ctx context.Context, log *logger.Logger, unit *types.LessonUnit, lc types.LessonContext, latest *types.StatusRecord) (Outcome, error) {
	lesson, err := unit.Lesson()
	if err != nil {
		return Outcome{}, &fault{stage: StageLoad, err: err}
	}
	attempt, err := w.store.CountPriorAttempts(ctx, unit.ID)
	if err != nil {
		return Outcome{}, &fault{stage: StageLoad, err: err}
	}
	source := unit.GeneratedSource

	if latest != nil && latest.Status == types.StatusCompiling && source != "" {
		log.Info("Resuming lesson unit at compile", "attempt", attempt)
		return w.compileAndFinish(ctx, log, unit, source, attempt, nil, true)
	}

	switch {
	case source == "":
		src, err := w.provider.GenerateLessonSource(ctx, lesson.Title, lesson.Blocks, lc)
		if err != nil {
			return Outcome{}, &fault{stage: StageGenerate, attempt: attempt + 1, err: err}
		}
		if err := w.store.UpdateGeneratedSource(ctx, unit.ID, src, attempt+1); err != nil {
			return Outcome{}, err
		}
		if _, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, unit.ID, types.StatusGenerated, GeneratedMeta{Attempt: attempt + 1, Bytes: len(src)}); err != nil {
			return Outcome{}, err
		}
		source = src
	case latest == nil:
		// First source stored but its generated record was lost.
		if err := w.recoverGenerated(ctx, log, unit.ID, source, attempt+1); err != nil {
			return Outcome{}, err
		}
	}

	// A crash after `validating` was written leaves the attempt counted, and
	// the source it covered is revalidated under it. A source stored by a
	// later attempt is a regeneration whose generated record was lost; it
	// takes the next counted attempt without another provider call.
	resumeValidating := false
	if latest != nil && latest.Status == types.StatusValidating && attempt > 0 {
		if unit.SourceAttempt > attempt {
			if err := w.recoverGenerated(ctx, log, unit.ID, source, unit.SourceAttempt); err != nil {
				return Outcome{}, err
			}
		} else {
			resumeValidating = true
			log.Info("Resuming lesson unit mid-validation", "attempt", attempt)
		}
	}

	for {
		if !resumeValidating {
			if attempt >= w.maxAttempts {
				return w.finishFailed(ctx, log, unit, attempt, nil)
			}
			attempt++
			if _, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, unit.ID, types.StatusValidating, AttemptMeta{Attempt: attempt}); err != nil {
				return Outcome{}, err
			}
			if err := w.store.RecordAttempt(ctx, unit.ID, attempt); err != nil {
				return Outcome{}, err
			}
		}
		resumeValidating = false

		res, err := w.validator.Check(ctx, source)
		if err != nil {
			return Outcome{}, &fault{stage: StageValidate, attempt: attempt, err: err}
		}
		for _, e := range res.Errors {
			observability.ValidationFindings.WithLabelValues(string(e.Category), e.Code).Inc()
		}
		if res.Valid {
			return w.compileAndFinish(ctx, log, unit, source, attempt, res.Warnings, false)
		}
		log.Info("Lesson source failed validation", "attempt", attempt, "errors", len(res.Errors))
		if attempt >= w.maxAttempts {
			return w.finishFailed(ctx, log, unit, attempt, res.Errors)
		}

		src, err := w.provider.RegenerateLessonSource(ctx, source, res.Errors, lesson.Title, lesson.Blocks, attempt+1)
		if err != nil {
			return Outcome{}, &fault{stage: StageRegenerate, attempt: attempt, err: err}
		}
		if err := w.store.UpdateGeneratedSource(ctx, unit.ID, src, attempt+1); err != nil {
			return Outcome{}, err
		}
		meta := GeneratedMeta{Attempt: attempt + 1, Bytes: len(src), PreviousErrors: res.Errors}
		if _, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, unit.ID, types.StatusGenerated, meta); err != nil {
			return Outcome{}, err
		}
		source = src
	}
}

func (w *Workflow) recoverGenerated(ctx context.Context, log *logger.Logger, lessonID uuid.UUID, source string, attempt int) error {
	log.Warn("Recording lost generated status", "attempt", attempt)
	_, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, lessonID, types.StatusGenerated,
		GeneratedMeta{Attempt: attempt, Bytes: len(source), Recovered: true})
	return err
}

func (w *Workflow) compileAndFinish(ctx context.Context, log *logger.Logger, unit *types.LessonUnit, source string, attempt int, warnings []types.ValidationError, resumed bool) (Outcome, error) {
	if !resumed {
		if _, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, unit.ID, types.StatusCompiling, AttemptMeta{Attempt: attempt}); err != nil {
			return Outcome{}, err
		}
	}
	art, err := w.compile(source)
	if err != nil {
		return Outcome{}, &fault{stage: StageCompile, attempt: attempt, err: err}
	}
	if err := w.store.UpdateCompiledArtifact(ctx, unit.ID, art.Script); err != nil {
		return Outcome{}, err
	}
	meta := TerminalMeta{Attempts: attempt, Bytes: len(art.Script), Warnings: warnings}
	out := Outcome{LessonID: unit.ID, Index: unit.Index, Title: unit.Title, Status: types.StatusCompleted, Attempts: attempt}
	return w.appendTerminal(ctx, log, unit, out, meta)
}

func (w *Workflow) finishFailed(ctx context.Context, log *logger.Logger, unit *types.LessonUnit, attempts int, errs []types.ValidationError) (Outcome, error) {
	meta := TerminalMeta{Attempts: attempts, Errors: errs}
	out := Outcome{LessonID: unit.ID, Index: unit.Index, Title: unit.Title, Status: types.StatusFailed, Attempts: attempts, Errors: errs}
	return w.appendTerminal(ctx, log, unit, out, meta)
}

func (w *Workflow) recordFault(ctx context.Context, log *logger.Logger, unit *types.LessonUnit, f *fault) (Outcome, error) {
	log.Error("Lesson unit system error", "stage", f.stage, "attempt", f.attempt, "error", f.err)
	meta := TerminalMeta{Attempts: f.attempt, Stage: f.stage, Kind: provider.Kind(f.err), Error: f.err.Error()}
	out := Outcome{
		LessonID: unit.ID,
		Index:    unit.Index,
		Title:    unit.Title,
		Status:   types.StatusError,
		Attempts: f.attempt,
		Stage:    f.stage,
		Error:    f.err.Error(),
	}
	res, err := w.appendTerminal(ctx, log, unit, out, meta)
	if err != nil {
		return out, fmt.Errorf("record lesson error: %w (cause: %v)", err, f.err)
	}
	return res, nil
}

// appendTerminal writes the terminal record. If another writer got there
// first the stored outcome wins.
func (w *Workflow) appendTerminal(ctx context.Context, log *logger.Logger, unit *types.LessonUnit, out Outcome, meta TerminalMeta) (Outcome, error) {
	_, err := w.store.AppendStatus(ctx, types.EntityLessonUnit, unit.ID, out.Status, meta)
	if errors.Is(err, apperr.ErrDuplicateTerminal) {
		latest, lerr := w.store.LatestStatus(ctx, unit.ID)
		if lerr != nil {
			return out, lerr
		}
		if latest != nil && latest.Status.IsTerminal() {
			return OutcomeFromRecord(unit, latest), nil
		}
		return out, err
	}
	if err != nil {
		return out, err
	}
	observability.LessonOutcomes.WithLabelValues(string(out.Status)).Inc()
	if out.Attempts > 0 {
		observability.LessonAttempts.Observe(float64(out.Attempts))
	}
	log.Info("Lesson unit finished", "status", out.Status, "attempts", out.Attempts)
	return out, nil
}

// OutcomeFromRecord rebuilds an outcome from a terminal status record.
func OutcomeFromRecord(unit *types.LessonUnit, rec *types.StatusRecord) Outcome {
	var meta TerminalMeta
	_ = rec.DecodeMetadata(&meta)
	return Outcome{
		LessonID: unit.ID,
		Index:    unit.Index,
		Title:    unit.Title,
		Status:   rec.Status,
		Attempts: meta.Attempts,
		Errors:   meta.Errors,
		Stage:    meta.Stage,
		Error:    meta.Error,
	}
}
