package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
)

// ErrRunnerStarted is returned when Start is called on a running Runner
var ErrRunnerStarted = errors.New("task runner already started")

// Ticker is the part of Manager the Runner drives
type Ticker interface {
	Tick(ctx context.Context)
	Admit(ctx context.Context) []Task
}

// Runner drives a Manager in the background: it ticks at a fixed interval
// and admits immediately when nudged.
type Runner struct {
	target   Ticker
	interval time.Duration
	nudge    chan struct{}

	mu         sync.Mutex
	started    bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	logger *slog.Logger
}

// NewRunner creates a Runner that ticks target every interval.
func NewRunner(target Ticker, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		logger.Warn("invalid tick interval specified, using default",
			"specified_interval", interval,
			"default_interval", DefaultTickInterval)
		interval = DefaultTickInterval
	}
	return &Runner{
		target:   target,
		interval: interval,
		// one pending nudge is enough; extra nudges coalesce into it
		nudge:  make(chan struct{}, 1),
		logger: logger.With("component", "task_runner"),
	}
}

// Start launches the tick loop.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRunnerStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFunc = cancel
	r.started = true

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("task runner started", "tick_interval", r.interval)
	return nil
}

// Stop ends the tick loop and waits for it to exit. It is safe to call
// more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancelFunc()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// Nudge requests an admission round as soon as possible. It never blocks.
func (r *Runner) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// HandleEvent nudges admission whenever a lifecycle event may have freed a
// slot or queued a task.
func (r *Runner) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	switch event.Type {
	case events.TaskCreated, events.TaskRetried, events.TaskCompleted,
		events.TaskFailed, events.TaskCancelled, events.TaskDeleted:
		r.Nudge()
	}
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			r.target.Tick(ctx)

		case <-r.nudge:
			if started := r.target.Admit(ctx); len(started) > 0 {
				r.logger.Debug("admitted tasks on nudge", "count", len(started))
			}
		}
	}
}
