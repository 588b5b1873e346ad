package downloads

import (
	"context"
	"sync"
	"time"

	"github.com/cratehub/registry/pkg/observability"
)

// Runner drives repeated aggregation runs in daemon mode: one run
// immediately on Start, then one per interval tick. A failed run is logged
// and the next tick starts fresh from max id zero, which re-reads exactly
// the rows the failed run left uncommitted.
type Runner struct {
	run      func(ctx context.Context) (RunStats, error)
	interval time.Duration
	logger   *observability.Logger
	onRun    func(ctx context.Context, stats RunStats)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewRunner wraps an engine in an interval loop.
func NewRunner(engine *Engine, interval time.Duration, logger *observability.Logger) *Runner {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Runner{
		run:      engine.Run,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnRunComplete registers a hook invoked after each successful run, e.g. to
// publish the refreshed totals. Must be set before Start.
func (r *Runner) OnRunComplete(fn func(ctx context.Context, stats RunStats)) {
	r.onRun = fn
}

// Start launches the loop. Stop (or cancelling ctx) ends it.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop signals the loop and waits for the in-flight run to finish. Only
// valid after Start.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	stats, err := r.run(ctx)
	if err != nil {
		r.logger.WithError(err).Error("aggregation run failed")
		return
	}
	if r.onRun != nil {
		r.onRun(ctx, stats)
	}
}
