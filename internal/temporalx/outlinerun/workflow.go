package outlinerun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow drives one outline request through the orchestrator activity.
// The orchestrator resumes from the latest status record, so a retried
// activity continues where the failed one stopped.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.OutlineID) == "" {
		return Result{}, temporal.NewNonRetryableApplicationError("missing outline_id", "invalid_input", nil)
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        5 * time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeNotFound, "invalid_input"},
		},
	})

	var out Result
	if err := workflow.ExecuteActivity(ctx, ActivityProcess, in).Get(ctx, &out); err != nil {
		return Result{}, err
	}
	workflow.GetLogger(ctx).Info("Outline run finished", "outline_id", out.OutlineID, "status", out.Status)
	if out.Status == "" {
		return out, fmt.Errorf("outline %s: run ended without a terminal status", in.OutlineID)
	}
	return out, nil
}
