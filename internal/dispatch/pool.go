package dispatch

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// PoolDispatcher runs handlers on an in-process worker pool. Delivery is
// at-least-once: a handler error is retried with backoff up to
// MaxAttempts, then the event lands in the dead-letter queue. There is no
// ordering guarantee across events.
type PoolDispatcher struct {
	registry *Registry
	retry    resilience.RetryConfig
	queue    chan Event
	dlq      *DeadLetter

	startOnce sync.Once
	stopOnce  sync.Once
	group     *errgroup.Group
	cancel    context.CancelFunc
}

// NewPoolDispatcher builds a dispatcher with the given worker count. Call
// Start before Send; Stop drains the queue and waits for workers.
func NewPoolDispatcher(registry *Registry, workers int, retry resilience.RetryConfig) *PoolDispatcher {
	if workers <= 0 {
		workers = 8
	}
	// Handlers return nil for business-logic outcomes, so any error here
	// is infrastructure and worth retrying.
	retry.ShouldRetry = func(error) bool { return true }
	return &PoolDispatcher{
		registry: registry,
		retry:    retry,
		queue:    make(chan Event, workers*16),
		dlq:      NewDeadLetter(),
	}
}

// Start launches the worker pool. Workers run until Stop is called or ctx
// is cancelled.
func (d *PoolDispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		d.cancel = cancel

		g, gctx := errgroup.WithContext(ctx)
		d.group = g
		workers := cap(d.queue) / 16
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case evt, ok := <-d.queue:
						if !ok {
							return nil
						}
						d.process(gctx, evt)
					}
				}
			})
		}
	})
}

// Send enqueues an event. It blocks when the queue is full and fails only
// on context cancellation or when no handler is registered.
func (d *PoolDispatcher) Send(ctx context.Context, evt Event) error {
	if _, err := d.registry.Handler(evt.Name); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "dispatch: send %s", evt.Name)
	case d.queue <- evt:
		return nil
	}
}

// Stop closes the queue and waits for in-flight events to finish.
func (d *PoolDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
		if d.group != nil {
			d.group.Wait()
		}
		if d.cancel != nil {
			d.cancel()
		}
	})
}

// DLQ exposes events that exhausted their retries.
func (d *PoolDispatcher) DLQ() *DeadLetter {
	return d.dlq
}

func (d *PoolDispatcher) process(ctx context.Context, evt Event) {
	handler, err := d.registry.Handler(evt.Name)
	if err != nil {
		zap.L().Error("dropping event with no handler",
			zap.String("event", evt.Name),
			zap.String("run_id", evt.RunID))
		return
	}

	cfg := d.retry
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("retrying event",
			zap.String("event", evt.Name),
			zap.String("run_id", evt.RunID),
			zap.String("lead_id", evt.LeadID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	if err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return handler(ctx, evt)
	}); err != nil {
		zap.L().Error("event exhausted retries",
			zap.String("event", evt.Name),
			zap.String("run_id", evt.RunID),
			zap.String("lead_id", evt.LeadID),
			zap.Error(err))
		d.dlq.Push(evt, err, cfg.MaxAttempts)
	}
}
