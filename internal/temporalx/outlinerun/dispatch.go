package outlinerun

import (
	"context"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Dispatcher starts outline runs as Temporal workflows.
type Dispatcher struct {
	client    temporalsdkclient.Client
	taskQueue string
}

func NewDispatcher(c temporalsdkclient.Client, taskQueue string) *Dispatcher {
	return &Dispatcher{client: c, taskQueue: taskQueue}
}

// Dispatch starts the outline's workflow, or attaches to the running one.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	_, err := d.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(id.String()),
		TaskQueue:                d.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, WorkflowName, Input{OutlineID: id.String()})
	return err
}
