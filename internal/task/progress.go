package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the wall-clock time represented by one tick
const DefaultTickInterval = time.Second

// errNoResult is recorded when a resolver reports success without a locator
var errNoResult = errors.New("resolver returned no result url")

// tracker is the driver's handle on one processing task
type tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	// resolving is set once the resolver has been asked for an outcome
	resolving bool
}

// Driver advances processing tasks and resolves them when their running
// time reaches the estimate.
type Driver struct {
	registry *Registry
	resolver Resolver
	tick     time.Duration
	async    bool
	// onResolved, if set, receives each task that reached a terminal state
	onResolved func(ctx context.Context, t Task)

	mu       sync.Mutex
	trackers map[string]*tracker
	wg       sync.WaitGroup

	logger *slog.Logger
}

// DriverConfig holds configuration for the progress driver
type DriverConfig struct {
	// TickInterval is added to each processing task's elapsed time per Advance
	TickInterval time.Duration

	// AsyncResolution runs the resolver on its own goroutine so that slow
	// backends never hold up a tick
	AsyncResolution bool
}

// NewDriver creates a progress driver.
func NewDriver(registry *Registry, resolver Resolver, config DriverConfig, logger *slog.Logger) *Driver {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	return &Driver{
		registry: registry,
		resolver: resolver,
		tick:     config.TickInterval,
		async:    config.AsyncResolution,
		trackers: make(map[string]*tracker),
		logger:   logger.With("component", "progress_driver"),
	}
}

// OnResolved registers the callback invoked after a terminal outcome is applied.
func (d *Driver) OnResolved(fn func(ctx context.Context, t Task)) {
	d.onResolved = fn
}

// Track starts tracking a task that has just been promoted and reports
// whether it is tracked. A task that is no longer processing is not
// tracked; tracking an already tracked task is a no-op.
func (d *Driver) Track(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackLocked(id) != nil
}

// trackLocked returns the task's tracker, creating one only while the task
// is processing. Cancel and delete change the status before calling
// Release, so holding d.mu across the status check keeps a released task
// from being tracked again.
func (d *Driver) trackLocked(id string) *tracker {
	if tr, ok := d.trackers[id]; ok {
		return tr
	}
	t, err := d.registry.Get(id)
	if err != nil || t.Status != StatusProcessing {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	tr := &tracker{ctx: ctx, cancel: cancel}
	d.trackers[id] = tr
	return tr
}

// Release stops tracking a task and cancels any in-flight resolution.
// It reports whether the task was tracked.
func (d *Driver) Release(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr, ok := d.trackers[id]
	if !ok {
		return false
	}
	tr.cancel()
	delete(d.trackers, id)
	return true
}

// ReleaseAll stops tracking every task.
func (d *Driver) ReleaseAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.trackers)
	for id, tr := range d.trackers {
		tr.cancel()
		delete(d.trackers, id)
	}
	return n
}

// Tracked returns the number of tasks currently tracked.
func (d *Driver) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.trackers)
}

// Wait blocks until every asynchronous resolution has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Advance moves every processing task forward by one tick and resolves the
// tasks whose elapsed time has reached their estimate. Tasks cancelled or
// removed since the snapshot are skipped.
func (d *Driver) Advance(ctx context.Context) {
	for _, t := range d.registry.List(Filter{Statuses: []Status{StatusProcessing}}) {
		d.mu.Lock()
		tr := d.trackLocked(t.ID)
		resolving := tr != nil && tr.resolving
		d.mu.Unlock()
		if tr == nil || resolving {
			continue
		}

		updated, err := d.registry.Update(t.ID, Advance{By: d.tick})
		if err != nil {
			d.releaseTracker(t.ID, tr)
			d.logger.Debug("skipping progress update",
				"task_id", t.ID,
				"error", err)
			continue
		}

		if updated.Elapsed >= updated.EstimatedDuration {
			d.resolve(ctx, updated, tr)
		}
	}
}

func (d *Driver) resolve(ctx context.Context, t Task, tr *tracker) {
	d.mu.Lock()
	tr.resolving = true
	d.mu.Unlock()

	logger := d.logger.With("task_id", t.ID, "task_type", t.Type)

	if !d.async {
		out, err := d.resolver.Resolve(tr.ctx, t)
		d.finish(ctx, t.ID, tr, out, err, logger)
		return
	}

	logger.Debug("resolving task asynchronously")
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		out, err := d.resolver.Resolve(tr.ctx, t)
		d.finish(ctx, t.ID, tr, out, err, logger)
	}()
}

// finish applies the resolver's answer unless the task was released in the
// meantime, in which case the answer is discarded.
func (d *Driver) finish(ctx context.Context, id string, tr *tracker, out Output, resolveErr error, logger *slog.Logger) {
	d.mu.Lock()
	current, ok := d.trackers[id]
	d.mu.Unlock()
	if !ok || current != tr {
		logger.Debug("discarding outcome for released task", "error", resolveErr)
		return
	}

	if resolveErr == nil && out.ResultURL == "" {
		resolveErr = errNoResult
	}

	var m Mutation = Complete{Output: out}
	if resolveErr != nil {
		m = Fail{Reason: resolveErr.Error()}
	}

	t, err := d.registry.Update(id, m)
	d.releaseTracker(id, tr)
	if err != nil {
		logger.Debug("discarding outcome", "outcome", m.Name(), "error", err)
		return
	}

	if t.Status == StatusCompleted {
		logger.Info("task completed", "result_url", t.Output.ResultURL)
	} else {
		logger.Warn("task failed", "error", t.Error)
	}

	if d.onResolved != nil {
		d.onResolved(ctx, t)
	}
}

// releaseTracker removes tr only if it is still the task's current handle.
func (d *Driver) releaseTracker(id string, tr *tracker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.trackers[id]; ok && current == tr {
		tr.cancel()
		delete(d.trackers, id)
	}
}
