package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// TemporalDispatcher hands events to a Temporal task queue, letting the
// Temporal server own retries and durability. The worker command runs
// NewWorker against the same queue.
type TemporalDispatcher struct {
	client    client.Client
	taskQueue string
}

func NewTemporalDispatcher(c client.Client, taskQueue string) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, taskQueue: taskQueue}
}

func (d *TemporalDispatcher) Send(ctx context.Context, evt Event) error {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-%s", evt.Name, evt.ID),
		TaskQueue: d.taskQueue,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, EventWorkflow, evt)
	return eris.Wrapf(err, "dispatch: start workflow for %s", evt.Name)
}

// activities carries the handler registry into Temporal activity context.
type activities struct {
	registry *Registry
}

// HandleEvent is the single activity behind EventWorkflow.
func (a *activities) HandleEvent(ctx context.Context, evt Event) error {
	handler, err := a.registry.Handler(evt.Name)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), "unknown_event", err)
	}
	return handler(ctx, evt)
}

// EventWorkflow runs one event through its handler as an activity with a
// server-side retry policy.
func EventWorkflow(ctx workflow.Context, evt Event) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities
	return workflow.ExecuteActivity(ctx, a.HandleEvent, evt).Get(ctx, nil)
}

// NewWorker builds a Temporal worker serving EventWorkflow and its activity
// on the given task queue.
func NewWorker(c client.Client, taskQueue string, registry *Registry) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(EventWorkflow)
	w.RegisterActivity(&activities{registry: registry})
	return w
}
