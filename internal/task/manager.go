package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
)

// DefaultMaxRetries is the retry limit of tasks whose spec sets none
const DefaultMaxRetries = 3

// ManagerConfig holds configuration for the task manager
type ManagerConfig struct {
	// MaxConcurrentTasks is the number of execution slots
	MaxConcurrentTasks int

	// TickInterval is the simulated running time added per tick
	TickInterval time.Duration

	// DefaultMaxRetries applies to specs without their own limit
	DefaultMaxRetries int

	// AsyncResolution resolves outcomes off the tick goroutine
	AsyncResolution bool
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		TickInterval:       DefaultTickInterval,
		DefaultMaxRetries:  DefaultMaxRetries,
	}
}

// ManagerOption customises a Manager
type ManagerOption func(*managerOptions)

type managerOptions struct {
	clock   Clock
	emitter events.EventEmitter
}

// WithClock sets the time source used for task timestamps.
func WithClock(clock Clock) ManagerOption {
	return func(o *managerOptions) {
		o.clock = clock
	}
}

// WithEmitter sets the emitter that receives lifecycle events.
func WithEmitter(emitter events.EventEmitter) ManagerOption {
	return func(o *managerOptions) {
		o.emitter = emitter
	}
}

// Manager is the entry point for every task operation. It owns the
// registry, scheduler and progress driver and publishes a lifecycle event
// for each change.
type Manager struct {
	registry  *Registry
	scheduler *Scheduler
	driver    *Driver
	emitter   events.EventEmitter
	logger    *slog.Logger
}

// NewManager creates a Manager that resolves tasks with resolver.
func NewManager(config ManagerConfig, resolver Resolver, logger *slog.Logger, opts ...ManagerOption) *Manager {
	o := managerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		emitter: o.emitter,
		logger:  logger.With("component", "task_manager"),
	}
	m.registry = NewRegistry(config.DefaultMaxRetries, o.clock, logger)
	m.driver = NewDriver(m.registry, resolver, DriverConfig{
		TickInterval:    config.TickInterval,
		AsyncResolution: config.AsyncResolution,
	}, logger)
	m.driver.OnResolved(m.emitResolved)
	m.scheduler = NewScheduler(m.registry, m.driver, config.MaxConcurrentTasks,
		func(ctx context.Context, t Task) { m.emit(ctx, events.TaskStarted, t) },
		logger)

	return m
}

// MaxConcurrentTasks returns the number of execution slots.
func (m *Manager) MaxConcurrentTasks() int {
	return m.scheduler.MaxConcurrent()
}

// CreateTask registers a new queued task. It does not start running until
// the next admission.
func (m *Manager) CreateTask(ctx context.Context, spec Spec) (Task, error) {
	t, err := m.registry.Create(spec)
	if err != nil {
		return Task{}, err
	}
	m.logger.Info("task created",
		"task_id", t.ID,
		"task_type", t.Type,
		"priority", t.Priority,
		"credit_cost", t.CreditCost)
	m.emit(ctx, events.TaskCreated, t)
	return t, nil
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (Task, error) {
	return m.registry.Get(id)
}

// List returns the tasks matching f in creation order.
func (m *Manager) List(f Filter) []Task {
	return m.registry.List(f)
}

// Stats returns aggregate counts over all tasks.
func (m *Manager) Stats() Stats {
	return m.registry.Stats()
}

// CancelTask stops a queued or processing task.
func (m *Manager) CancelTask(ctx context.Context, id string) (Task, error) {
	t, err := m.registry.Update(id, Cancel{})
	if err != nil {
		return Task{}, err
	}
	m.driver.Release(id)
	m.logger.Info("task cancelled", "task_id", t.ID, "task_type", t.Type)
	m.emit(ctx, events.TaskCancelled, t)
	return t, nil
}

// RetryTask sends a failed or cancelled task back to the queue.
func (m *Manager) RetryTask(ctx context.Context, id string) (Task, error) {
	t, err := m.registry.Update(id, Retry{})
	if err != nil {
		return Task{}, err
	}
	m.logger.Info("task requeued",
		"task_id", t.ID,
		"task_type", t.Type,
		"retry_count", t.RetryCount,
		"max_retries", t.MaxRetries)
	m.emit(ctx, events.TaskRetried, t)
	return t, nil
}

// DeleteTask removes a task in any status.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	t, err := m.registry.Delete(id)
	if err != nil {
		return err
	}
	m.driver.Release(id)
	m.logger.Info("task deleted", "task_id", t.ID, "status", t.Status)
	m.emit(ctx, events.TaskDeleted, t)
	return nil
}

// ClearCompleted removes every completed task and returns how many were removed.
func (m *Manager) ClearCompleted(ctx context.Context) int {
	removed := m.registry.ClearCompleted()
	for _, t := range removed {
		m.emit(ctx, events.TaskDeleted, t)
	}
	m.logger.Info("cleared completed tasks", "count", len(removed))
	return len(removed)
}

// ClearAll removes every task, stops all tracking and returns how many
// tasks were removed.
func (m *Manager) ClearAll(ctx context.Context) int {
	removed := m.registry.ClearAll()
	m.driver.ReleaseAll()
	for _, t := range removed {
		m.emit(ctx, events.TaskDeleted, t)
	}
	m.logger.Info("cleared all tasks", "count", len(removed))
	return len(removed)
}

// Tick advances running tasks and then fills any free slots, so a slot
// freed by this tick is reused in the same tick.
func (m *Manager) Tick(ctx context.Context) {
	m.driver.Advance(ctx)
	m.scheduler.Admit(ctx)
}

// Admit fills free slots without advancing progress.
func (m *Manager) Admit(ctx context.Context) []Task {
	return m.scheduler.Admit(ctx)
}

// Close stops tracking every task and waits for in-flight resolutions.
func (m *Manager) Close() {
	m.driver.ReleaseAll()
	m.driver.Wait()
}

func (m *Manager) emitResolved(ctx context.Context, t Task) {
	eventType := events.TaskFailed
	if t.Status == StatusCompleted {
		eventType = events.TaskCompleted
	}
	m.emit(ctx, eventType, t)
}

// emit publishes a lifecycle event. Handler failures are logged and never
// affect the operation that produced the event.
func (m *Manager) emit(ctx context.Context, eventType string, t Task) {
	if m.emitter == nil {
		return
	}
	event, err := events.NewTaskEvent(eventType, t.ID, t)
	if err != nil {
		m.logger.Error("failed to build task event",
			"error", err,
			"event_type", eventType,
			"task_id", t.ID)
		return
	}
	if err := m.emitter.EmitEvent(ctx, event); err != nil {
		m.logger.Warn("task event handler failed",
			"error", err,
			"event_type", eventType,
			"task_id", t.ID)
	}
}
