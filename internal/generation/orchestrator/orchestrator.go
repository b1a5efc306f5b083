// Package orchestrator drives an outline request through validation, block
// generation and the lesson fan-out, recording every transition in the
// status trail so a run can resume after a crash.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/decision"
	"github.com/yungbote/lessonforge/internal/generation/lessonunit"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/generation/provider"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	"github.com/yungbote/lessonforge/internal/observability"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// Supervisor task kinds.
const (
	KindOutline = "outline"
	KindLesson  = "lesson"
)

type Store interface {
	lessonunit.Store
	FindOutlineRequest(ctx context.Context, id uuid.UUID) (*types.OutlineRequest, error)
	LatestStatusOf(ctx context.Context, entityID uuid.UUID, status types.Status) (*types.StatusRecord, error)
	CreateLesson(ctx context.Context, outlineID uuid.UUID, index int, lesson types.Lesson) (*types.LessonUnit, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*types.LessonUnit, error)
	ListLessons(ctx context.Context, outlineID uuid.UUID) ([]*types.LessonUnit, error)
}

// Outcome is the disposition of one outline request.
type Outcome struct {
	OutlineID uuid.UUID            `json:"outline_id"`
	Status    types.Status         `json:"status"`
	Reasons   []string             `json:"reasons,omitempty"`
	Lessons   []lessonunit.Outcome `json:"lessons,omitempty"`
	Stage     string               `json:"stage,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Status record metadata, one shape per outline status.
type (
	SubmittedMeta struct {
		Title string `json:"title"`
	}
	ValidatedMeta struct {
		Scores   types.ValidationScores `json:"scores"`
		Decision decision.Decision      `json:"decision"`
	}
	BlocksRequestMeta struct {
		Feedback types.Feedback `json:"feedback"`
	}
	BlocksMeta struct {
		Lessons     []types.Lesson `json:"lessons"`
		LessonCount int            `json:"lesson_count"`
		BlockCount  int            `json:"block_count"`
	}
	SpawnRequestMeta struct {
		LessonCount int `json:"lesson_count"`
	}
	SpawnMeta struct {
		LessonIDs []uuid.UUID `json:"lesson_ids"`
	}
	JoinMeta struct {
		Lessons   []lessonunit.Outcome `json:"lessons"`
		Completed int                  `json:"completed"`
		Failed    int                  `json:"failed"`
		Errored   int                  `json:"errored"`
	}
	FinalMeta struct {
		Scores  *types.ValidationScores `json:"scores,omitempty"`
		Reasons []string                `json:"reasons,omitempty"`
		Codes   []decision.Code         `json:"codes,omitempty"`
		Lessons []lessonunit.Outcome    `json:"lessons,omitempty"`
		Stage   string                  `json:"stage,omitempty"`
		Kind    string                  `json:"kind,omitempty"`
		Error   string                  `json:"error,omitempty"`
	}
)

type Orchestrator struct {
	store      Store
	provider   provider.Provider
	units      *lessonunit.Workflow
	thresholds policy.Thresholds
	sup        *runtime.Supervisor
	log        *logger.Logger
	flight     singleflight.Group
}

func New(store Store, prov provider.Provider, units *lessonunit.Workflow, thresholds policy.Thresholds, sup *runtime.Supervisor, baseLog *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		provider:   prov,
		units:      units,
		thresholds: thresholds,
		sup:        sup,
		log:        baseLog.With("component", "OutlineOrchestrator"),
	}
}

// ProcessOutlineRequest runs the request to a terminal status, resuming from
// its latest status record. On a terminal request it returns the recorded
// outcome and appends nothing. Concurrent calls for one id share a run.
func (o *Orchestrator) ProcessOutlineRequest(ctx context.Context, id uuid.UUID) (Outcome, error) {
	v, err, _ := o.flight.Do(id.String(), func() (any, error) {
		return o.process(ctx, id)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

// Submit starts a detached run owned by the supervisor. A run already in
// flight for id is returned instead of starting another.
func (o *Orchestrator) Submit(id uuid.UUID) (*runtime.Handle, error) {
	h, started, err := o.sup.Go(KindOutline, id, func(ctx context.Context) error {
		_, err := o.ProcessOutlineRequest(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if started {
		o.log.Info("Outline run submitted", "outline_id", id)
	}
	return h, nil
}

// run caches what earlier stages produced so later stages do not re-read it.
type run struct {
	outline *types.OutlineRequest
	scores  *types.ValidationScores
	lessons []types.Lesson
}

func (o *Orchestrator) process(ctx context.Context, id uuid.UUID) (Outcome, error) {
	log := o.log.With("outline_id", id)
	outline, err := o.store.FindOutlineRequest(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if outline == nil {
		return Outcome{}, fmt.Errorf("outline request %s: %w", id, apperr.ErrNotFound)
	}

	latest, err := o.store.LatestStatus(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if latest == nil {
		latest, err = o.append(ctx, id, types.StatusSubmitted, SubmittedMeta{Title: outline.Title})
		if err != nil {
			return Outcome{}, err
		}
	}
	if latest.Status.IsTerminal() {
		log.Debug("Outline already terminal", "status", latest.Status)
		return outcomeFromRecord(id, latest), nil
	}
	if latest.Status != types.StatusSubmitted {
		log.Info("Resuming outline run", "status", latest.Status, "seq", latest.Seq)
	}

	r := &run{outline: outline}
	state := latest.Status
	for {
		start := time.Now()
		stageCtx, span := observability.Tracer().Start(ctx, "outline."+string(state))
		span.SetAttributes(attribute.String("outline.id", id.String()))

		ev, meta, actErr := o.act(stageCtx, r, state)
		if actErr != nil {
			fev := EvFault
			if state == types.StatusLessonsValidated {
				fev = EvAnyError
			}
			if _, _, terr := Transition(state, fev); terr != nil {
				span.RecordError(actErr)
				span.End()
				return Outcome{}, actErr
			}
			span.RecordError(actErr)
			span.SetStatus(codes.Error, string(state))
			log.Error("Outline stage failed", "stage", state, "error", actErr)
			ev = fev
			meta = FinalMeta{Stage: string(state), Kind: provider.Kind(actErr), Error: actErr.Error()}
		}

		next, _, err := Transition(state, ev)
		if err != nil {
			span.End()
			return Outcome{}, err
		}
		rec, err := o.append(ctx, id, next, meta)
		span.SetAttributes(attribute.String("outline.next", string(next)))
		span.End()
		if errors.Is(err, apperr.ErrDuplicateTerminal) {
			current, lerr := o.store.LatestStatus(ctx, id)
			if lerr != nil {
				return Outcome{}, lerr
			}
			return outcomeFromRecord(id, current), nil
		}
		if err != nil {
			return Outcome{}, err
		}
		observability.ObserveStage(string(state), string(ev), time.Since(start))

		if next.IsTerminal() {
			observability.OutlineDispositions.WithLabelValues(string(next)).Inc()
			log.Info("Outline run finished", "status", next)
			return outcomeFromRecord(id, rec), nil
		}
		state = next
	}
}

// act performs the effect owed by state and reports the event plus the
// metadata for the record that event leads to.
func (o *Orchestrator) act(ctx context.Context, r *run, state types.Status) (Event, any, error) {
	switch EffectOf(state) {
	case EffectValidateOutline:
		return o.validateOutline(ctx, r)
	case EffectGenerateBlocks:
		return o.generateBlocks(ctx, r)
	case EffectSpawnLessons:
		meta, err := o.spawnLessons(ctx, r)
		return EvSpawned, meta, err
	case EffectJoinLessons:
		meta, err := o.joinLessons(ctx, r)
		return EvJoined, meta, err
	case EffectClassify:
		return o.classify(ctx, r)
	}

	switch state {
	case types.StatusSubmitted:
		return EvBegin, struct{}{}, nil
	case types.StatusValidated:
		scores, err := o.loadScores(ctx, r)
		if err != nil {
			return "", nil, err
		}
		return EvBegin, BlocksRequestMeta{Feedback: types.FeedbackFromScores(scores)}, nil
	case types.StatusBlocksGenerated:
		lessons, err := o.loadLessons(ctx, r)
		if err != nil {
			return "", nil, err
		}
		return EvBegin, SpawnRequestMeta{LessonCount: len(lessons)}, nil
	case types.StatusLessonsGenerated:
		return EvBegin, struct{}{}, nil
	default:
		return "", nil, fmt.Errorf("%w: no action for state %s", apperr.ErrInvalidTransition, state)
	}
}

func (o *Orchestrator) validateOutline(ctx context.Context, r *run) (Event, any, error) {
	scores, err := o.provider.ValidateOutline(ctx, r.outline.OutlineText)
	if err != nil {
		return "", nil, err
	}
	d := decision.Decide(scores, o.thresholds)
	if !d.Accepted {
		for _, c := range d.Codes {
			observability.OutlineRejections.WithLabelValues(string(c)).Inc()
		}
		o.log.Info("Outline rejected", "outline_id", r.outline.ID, "codes", d.Codes)
		return EvRejected, FinalMeta{Scores: &scores, Reasons: d.Reasons, Codes: d.Codes}, nil
	}
	r.scores = &scores
	return EvAccepted, ValidatedMeta{Scores: scores, Decision: d}, nil
}

func (o *Orchestrator) generateBlocks(ctx context.Context, r *run) (Event, any, error) {
	scores, err := o.loadScores(ctx, r)
	if err != nil {
		return "", nil, err
	}
	lessons, err := o.provider.GenerateBlocks(ctx, r.outline.OutlineText, types.FeedbackFromScores(scores))
	if err != nil {
		return "", nil, err
	}
	if err := CheckLessons(lessons); err != nil {
		return "", nil, err
	}
	r.lessons = lessons
	return EvBlocksReady, BlocksMeta{
		Lessons:     lessons,
		LessonCount: len(lessons),
		BlockCount:  types.CountBlocks(lessons),
	}, nil
}

// CheckLessons re-checks generated lessons: at least one lesson, every lesson
// titled and non-empty, every block valid, and no more than
// MaxBlocksPerOutline blocks in total.
func CheckLessons(lessons []types.Lesson) error {
	if len(lessons) == 0 {
		return fmt.Errorf("%w: no lessons generated", apperr.ErrContractViolation)
	}
	if n := types.CountBlocks(lessons); n > types.MaxBlocksPerOutline {
		return fmt.Errorf("%w: %d blocks exceeds the limit of %d", apperr.ErrContractViolation, n, types.MaxBlocksPerOutline)
	}
	for i, l := range lessons {
		if l.Title == "" {
			return fmt.Errorf("%w: lesson %d has no title", apperr.ErrContractViolation, i)
		}
		if len(l.Blocks) == 0 {
			return fmt.Errorf("%w: lesson %d has no blocks", apperr.ErrContractViolation, i)
		}
		for j, b := range l.Blocks {
			if err := b.Validate(); err != nil {
				return fmt.Errorf("%w: lesson %d block %d: %v", apperr.ErrContractViolation, i, j, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) spawnLessons(ctx context.Context, r *run) (SpawnMeta, error) {
	lessons, err := o.loadLessons(ctx, r)
	if err != nil {
		return SpawnMeta{}, err
	}
	scores, err := o.loadScores(ctx, r)
	if err != nil {
		return SpawnMeta{}, err
	}
	lc := types.LessonContextFromScores(scores)

	ids := make([]uuid.UUID, 0, len(lessons))
	for i, l := range lessons {
		unit, err := o.store.CreateLesson(ctx, r.outline.ID, i, l)
		if err != nil {
			return SpawnMeta{}, fmt.Errorf("create lesson %d: %w", i, err)
		}
		if _, err := o.startUnit(ctx, unit.ID, lc); err != nil {
			return SpawnMeta{}, err
		}
		ids = append(ids, unit.ID)
	}
	return SpawnMeta{LessonIDs: ids}, nil
}

// startUnit registers the unit's workflow with the supervisor. It returns nil
// for a unit that is already terminal.
func (o *Orchestrator) startUnit(ctx context.Context, unitID uuid.UUID, lc types.LessonContext) (*runtime.Handle, error) {
	latest, err := o.store.LatestStatus(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status.IsTerminal() {
		return nil, nil
	}
	h, _, err := o.sup.Go(KindLesson, unitID, func(taskCtx context.Context) error {
		unit, err := o.store.GetLesson(taskCtx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return fmt.Errorf("lesson unit %s: %w", unitID, apperr.ErrNotFound)
		}
		_, err = o.units.Run(taskCtx, unit, lc)
		return err
	})
	return h, err
}

func (o *Orchestrator) joinLessons(ctx context.Context, r *run) (JoinMeta, error) {
	units, err := o.store.ListLessons(ctx, r.outline.ID)
	if err != nil {
		return JoinMeta{}, err
	}
	if len(units) == 0 {
		return JoinMeta{}, fmt.Errorf("no lesson units for outline %s", r.outline.ID)
	}
	scores, err := o.loadScores(ctx, r)
	if err != nil {
		return JoinMeta{}, err
	}
	lc := types.LessonContextFromScores(scores)

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		h, ok := o.sup.Lookup(u.ID)
		if !ok {
			h, err = o.startUnit(ctx, u.ID, lc)
			if err != nil {
				return JoinMeta{}, err
			}
			if h != nil {
				o.log.Info("Respawned lesson unit", "outline_id", r.outline.ID, "lesson_id", u.ID)
			}
		}
		if h == nil {
			continue
		}
		g.Go(func() error {
			// A unit's own failure is in its trail; only cancellation aborts the join.
			if err := h.Wait(gctx); err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JoinMeta{}, err
	}

	meta := JoinMeta{Lessons: make([]lessonunit.Outcome, 0, len(units))}
	for _, u := range units {
		latest, err := o.store.LatestStatus(ctx, u.ID)
		if err != nil {
			return JoinMeta{}, err
		}
		var out lessonunit.Outcome
		if latest != nil && latest.Status.IsTerminal() {
			out = lessonunit.OutcomeFromRecord(u, latest)
		} else {
			out = lessonunit.Outcome{
				LessonID: u.ID,
				Index:    u.Index,
				Title:    u.Title,
				Status:   types.StatusError,
				Stage:    "join",
				Error:    "lesson unit stopped without a terminal status",
			}
		}
		switch out.Status {
		case types.StatusCompleted:
			meta.Completed++
		case types.StatusFailed:
			meta.Failed++
		default:
			meta.Errored++
		}
		meta.Lessons = append(meta.Lessons, out)
	}
	return meta, nil
}

func (o *Orchestrator) classify(ctx context.Context, r *run) (Event, any, error) {
	rec, err := o.store.LatestStatusOf(ctx, r.outline.ID, types.StatusLessonsValidated)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return "", nil, fmt.Errorf("missing %s record", types.StatusLessonsValidated)
	}
	var join JoinMeta
	if err := rec.DecodeMetadata(&join); err != nil {
		return "", nil, err
	}
	statuses := make([]types.Status, 0, len(join.Lessons))
	for _, l := range join.Lessons {
		statuses = append(statuses, l.Status)
	}
	return Classify(statuses), FinalMeta{Lessons: join.Lessons}, nil
}

func (o *Orchestrator) loadScores(ctx context.Context, r *run) (types.ValidationScores, error) {
	if r.scores != nil {
		return *r.scores, nil
	}
	rec, err := o.store.LatestStatusOf(ctx, r.outline.ID, types.StatusValidated)
	if err != nil {
		return types.ValidationScores{}, err
	}
	if rec == nil {
		return types.ValidationScores{}, fmt.Errorf("missing %s record", types.StatusValidated)
	}
	var meta ValidatedMeta
	if err := rec.DecodeMetadata(&meta); err != nil {
		return types.ValidationScores{}, err
	}
	r.scores = &meta.Scores
	return meta.Scores, nil
}

func (o *Orchestrator) loadLessons(ctx context.Context, r *run) ([]types.Lesson, error) {
	if r.lessons != nil {
		return r.lessons, nil
	}
	rec, err := o.store.LatestStatusOf(ctx, r.outline.ID, types.StatusBlocksGenerated)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("missing %s record", types.StatusBlocksGenerated)
	}
	var meta BlocksMeta
	if err := rec.DecodeMetadata(&meta); err != nil {
		return nil, err
	}
	r.lessons = meta.Lessons
	return meta.Lessons, nil
}

func (o *Orchestrator) append(ctx context.Context, id uuid.UUID, status types.Status, meta any) (*types.StatusRecord, error) {
	return o.store.AppendStatus(ctx, types.EntityOutlineRequest, id, status, meta)
}

func outcomeFromRecord(id uuid.UUID, rec *types.StatusRecord) Outcome {
	var meta FinalMeta
	_ = rec.DecodeMetadata(&meta)
	return Outcome{
		OutlineID: id,
		Status:    rec.Status,
		Reasons:   meta.Reasons,
		Lessons:   meta.Lessons,
		Stage:     meta.Stage,
		Error:     meta.Error,
	}
}

// Dispatch starts an in-process run for id. It lets the orchestrator stand in
// wherever a run dispatcher is expected.
func (o *Orchestrator) Dispatch(ctx context.Context, id uuid.UUID) error {
	_, err := o.Submit(id)
	return err
}
