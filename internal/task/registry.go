package task

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Clock returns the current time. Tests substitute a fixed or stepped clock.
type Clock func() time.Time

// Registry is the single owner of task records.
//
// Every read returns a snapshot copy and every write goes through Update,
// Create or one of the removal methods, all under one lock, so no reader
// ever sees a half-applied transition.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	// order preserves creation order for listing
	order []string

	validate          *validator.Validate
	now               Clock
	defaultMaxRetries int
	logger            *slog.Logger
}

// NewRegistry creates an empty registry. defaultMaxRetries applies to specs
// that do not set their own limit.
func NewRegistry(defaultMaxRetries int, now Clock, logger *slog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	if defaultMaxRetries < 0 {
		defaultMaxRetries = 0
	}
	return &Registry{
		tasks:             make(map[string]*Task),
		validate:          validator.New(),
		now:               now,
		defaultMaxRetries: defaultMaxRetries,
		logger:            logger.With("component", "task_registry"),
	}
}

// ValidateSpec checks a creation request without registering anything.
func (r *Registry) ValidateSpec(spec Spec) error {
	if err := r.validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidSpec, describeValidation(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if spec.EstimatedDuration <= 0 {
		return fmt.Errorf("%w: estimated duration must be positive", ErrInvalidSpec)
	}
	return nil
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Create validates spec and registers a new queued task.
func (r *Registry) Create(spec Spec) (Task, error) {
	if err := r.ValidateSpec(spec); err != nil {
		return Task{}, err
	}

	maxRetries := r.defaultMaxRetries
	if spec.MaxRetries != nil {
		maxRetries = *spec.MaxRetries
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("failed to generate task id: %w", err)
	}

	t := &Task{
		ID:                id.String(),
		Type:              spec.Type,
		Status:            StatusQueued,
		Priority:          spec.Priority,
		Input:             spec.Input,
		EstimatedDuration: spec.EstimatedDuration,
		CreditCost:        spec.CreditCost,
		MaxRetries:        maxRetries,
	}
	// detach the caller's params map
	t.Input.Params = maps.Clone(spec.Input.Params)

	r.mu.Lock()
	t.CreatedAt = r.now()
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	snapshot := t.clone()
	r.mu.Unlock()

	r.logger.Debug("task registered",
		"task_id", t.ID,
		"task_type", t.Type,
		"priority", t.Priority)

	return snapshot, nil
}

// Get returns a snapshot of the task with the given id.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.clone(), nil
}

// List returns snapshots of the tasks matching f, in creation order.
func (r *Registry) List(f Filter) []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		t := r.tasks[id]
		if f.Matches(t) {
			out = append(out, t.clone())
		}
	}
	return out
}

// Update applies one transition to the task with the given id and returns
// the resulting snapshot. On error the task is unchanged.
func (r *Registry) Update(id string, m Mutation) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := t.clone()
	if err := m.apply(&next, r.now()); err != nil {
		return Task{}, err
	}
	*t = next

	return t.clone(), nil
}

// Delete removes the task with the given id regardless of its status.
func (r *Registry) Delete(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.tasks, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })

	return t.clone(), nil
}

// ClearCompleted removes every completed task and returns the removed snapshots.
func (r *Registry) ClearCompleted() []Task {
	return r.removeWhere(func(t *Task) bool { return t.Status == StatusCompleted })
}

// ClearAll removes every task and returns the removed snapshots.
func (r *Registry) ClearAll() []Task {
	return r.removeWhere(func(*Task) bool { return true })
}

func (r *Registry) removeWhere(match func(*Task) bool) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Task
	kept := r.order[:0]
	for _, id := range r.order {
		t := r.tasks[id]
		if match(t) {
			removed = append(removed, t.clone())
			delete(r.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Stats recomputes the aggregate view of the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	for _, id := range r.order {
		s.add(r.tasks[id])
	}
	return s
}

// Count returns the number of tasks in the given status.
func (r *Registry) Count(status Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}
