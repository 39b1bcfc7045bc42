package task

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// DefaultMaxConcurrentTasks is the execution slot count used when none is configured
const DefaultMaxConcurrentTasks = 3

// Scheduler promotes queued tasks into free execution slots.
type Scheduler struct {
	// mu serialises admissions so two rounds never fill the same slot
	mu            sync.Mutex
	registry      *Registry
	driver        *Driver
	maxConcurrent int
	onStarted     func(ctx context.Context, t Task)
	logger        *slog.Logger
}

// NewScheduler creates a scheduler that keeps at most maxConcurrent tasks
// processing. onStarted, if non-nil, is called for each promoted task.
func NewScheduler(
	registry *Registry,
	driver *Driver,
	maxConcurrent int,
	onStarted func(ctx context.Context, t Task),
	logger *slog.Logger,
) *Scheduler {
	if maxConcurrent <= 0 {
		logger.Warn("invalid concurrency limit specified, using default",
			"specified_limit", maxConcurrent,
			"default_limit", DefaultMaxConcurrentTasks)
		maxConcurrent = DefaultMaxConcurrentTasks
	}
	return &Scheduler{
		registry:      registry,
		driver:        driver,
		maxConcurrent: maxConcurrent,
		onStarted:     onStarted,
		logger:        logger.With("component", "task_scheduler"),
	}
}

// MaxConcurrent returns the execution slot count.
func (s *Scheduler) MaxConcurrent() int {
	return s.maxConcurrent
}

// Admit fills free slots with the highest ranked queued tasks and returns
// the tasks it promoted.
func (s *Scheduler) Admit(ctx context.Context) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := s.maxConcurrent - s.registry.Count(StatusProcessing)
	if free <= 0 {
		return nil
	}

	candidates := s.registry.List(Filter{Statuses: []Status{StatusQueued}})
	if len(candidates) == 0 {
		return nil
	}
	sortByRank(candidates)

	var started []Task
	for _, c := range candidates {
		if len(started) == free {
			break
		}
		t, err := s.registry.Update(c.ID, Promote{})
		if err != nil {
			// removed or cancelled since the snapshot was taken
			s.logger.Debug("skipping admission candidate",
				"task_id", c.ID,
				"error", err)
			continue
		}
		s.driver.Track(t.ID)
		started = append(started, t)

		s.logger.Info("task started",
			"task_id", t.ID,
			"task_type", t.Type,
			"priority", t.Priority,
			"retry_count", t.RetryCount)

		if s.onStarted != nil {
			s.onStarted(ctx, t)
		}
	}
	return started
}

// sortByRank orders tasks by priority, then creation time, then id.
func sortByRank(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := a.Priority.rank(), b.Priority.rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
