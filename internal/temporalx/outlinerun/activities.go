package outlinerun

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

const ErrTypeNotFound = "outline_not_found"

// Processor is the slice of the orchestrator the activity needs.
type Processor interface {
	ProcessOutlineRequest(ctx context.Context, id uuid.UUID) (orchestrator.Outcome, error)
}

type Activities struct {
	Log       *logger.Logger
	Processor Processor
	// Heartbeat defaults to 10s.
	Heartbeat time.Duration
}

func (a *Activities) Process(ctx context.Context, in Input) (Result, error) {
	id, err := uuid.Parse(in.OutlineID)
	if err != nil || id == uuid.Nil {
		return Result{}, temporal.NewNonRetryableApplicationError("invalid outline_id", "invalid_input", err)
	}
	stop := a.startHeartbeat(ctx)
	defer stop()

	// Stages run detached from activity cancellation so a cancelled attempt
	// leaves the outline resumable instead of recording a terminal error.
	out, err := a.Processor.ProcessOutlineRequest(context.WithoutCancel(ctx), id)
	if errors.Is(err, apperr.ErrNotFound) {
		return Result{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	}
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("Outline activity failed; Temporal will retry", "outline_id", id, "error", err)
		}
		return Result{}, err
	}
	return Result{
		OutlineID: id.String(),
		Status:    string(out.Status),
		Reasons:   out.Reasons,
		Lessons:   len(out.Lessons),
		Stage:     out.Stage,
		Error:     out.Error,
	}, nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.Heartbeat
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
