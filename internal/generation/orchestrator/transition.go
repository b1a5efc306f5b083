package orchestrator

import (
	"fmt"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
)

// Event is what a stage reports after acting.
type Event string

const (
	EvBegin        Event = "begin"
	EvAccepted     Event = "accepted"
	EvRejected     Event = "rejected"
	EvFault        Event = "fault"
	EvBlocksReady  Event = "blocks_ready"
	EvSpawned      Event = "spawned"
	EvJoined       Event = "joined"
	EvAllCompleted Event = "all_completed"
	EvAnyFailed    Event = "any_failed"
	EvAnyError     Event = "any_error"
)

// Effect is the work performed while in a state.
type Effect string

const (
	EffectNone            Effect = ""
	EffectValidateOutline Effect = "validate_outline"
	EffectGenerateBlocks  Effect = "generate_blocks"
	EffectSpawnLessons    Effect = "spawn_lessons"
	EffectJoinLessons     Effect = "join_lessons"
	EffectClassify        Effect = "classify"
)

type edge struct {
	from types.Status
	on   Event
}

var transitions = map[edge]types.Status{
	{types.StatusSubmitted, EvBegin}: types.StatusValidating,

	{types.StatusValidating, EvAccepted}: types.StatusValidated,
	{types.StatusValidating, EvRejected}: types.StatusFailed,
	{types.StatusValidating, EvFault}:    types.StatusError,

	{types.StatusValidated, EvBegin}: types.StatusBlocksGenerating,

	{types.StatusBlocksGenerating, EvBlocksReady}: types.StatusBlocksGenerated,
	{types.StatusBlocksGenerating, EvFault}:       types.StatusError,

	{types.StatusBlocksGenerated, EvBegin}: types.StatusLessonsGenerating,

	{types.StatusLessonsGenerating, EvSpawned}: types.StatusLessonsGenerated,
	{types.StatusLessonsGenerating, EvFault}:   types.StatusError,

	{types.StatusLessonsGenerated, EvBegin}: types.StatusLessonsValidating,

	{types.StatusLessonsValidating, EvJoined}: types.StatusLessonsValidated,
	{types.StatusLessonsValidating, EvFault}:  types.StatusError,

	{types.StatusLessonsValidated, EvAllCompleted}: types.StatusCompleted,
	{types.StatusLessonsValidated, EvAnyFailed}:    types.StatusFailed,
	{types.StatusLessonsValidated, EvAnyError}:     types.StatusError,
}

var effects = map[types.Status]Effect{
	types.StatusValidating:        EffectValidateOutline,
	types.StatusBlocksGenerating:  EffectGenerateBlocks,
	types.StatusLessonsGenerating: EffectSpawnLessons,
	types.StatusLessonsValidating: EffectJoinLessons,
	types.StatusLessonsValidated:  EffectClassify,
}

// EffectOf is the work owed by a state. Settled states other than
// lessons_validated owe nothing and advance on EvBegin.
func EffectOf(state types.Status) Effect {
	return effects[state]
}

// Transition returns the next state for (state, event) and the effect owed
// in it. Pairs missing from the table are errors.
func Transition(state types.Status, ev Event) (types.Status, Effect, error) {
	next, ok := transitions[edge{state, ev}]
	if !ok {
		return "", EffectNone, fmt.Errorf("%w: %s on %s", apperr.ErrInvalidTransition, ev, state)
	}
	return next, EffectOf(next), nil
}

// Classify applies the batch rule: any error wins, then any failed, and only
// an all-completed batch completes.
func Classify(statuses []types.Status) Event {
	anyFailed := false
	for _, s := range statuses {
		switch s {
		case types.StatusError:
			return EvAnyError
		case types.StatusFailed:
			anyFailed = true
		case types.StatusCompleted:
		default:
			return EvAnyError
		}
	}
	if anyFailed {
		return EvAnyFailed
	}
	return EvAllCompleted
}
