package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// steppedClock returns a strictly increasing time on every call
type steppedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newSteppedClock() *steppedClock {
	return &steppedClock{
		now:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		step: time.Millisecond,
	}
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func newSpec(priority Priority, estimate time.Duration) Spec {
	return Spec{
		Type:              TypeImage,
		Priority:          priority,
		Input:             Input{Prompt: "a lighthouse at dusk"},
		EstimatedDuration: estimate,
		CreditCost:        2,
	}
}

func intPtr(v int) *int {
	return &v
}

// alwaysSucceed resolves every task with a locator derived from its id
var alwaysSucceed = ResolverFunc(func(_ context.Context, t Task) (Output, error) {
	return Output{ResultURL: "https://cdn.test/" + t.ID + ".png", MIMEType: "image/png"}, nil
})

// recordingEmitter keeps every emitted event
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskEvent
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestManager(t *testing.T, config ManagerConfig, resolver Resolver, opts ...ManagerOption) *Manager {
	t.Helper()
	clock := newSteppedClock()
	opts = append([]ManagerOption{WithClock(clock.Now)}, opts...)
	m := NewManager(config, resolver, testLogger(), opts...)
	t.Cleanup(m.Close)
	return m
}

func mustCreate(t *testing.T, m *Manager, spec Spec) Task {
	t.Helper()
	created, err := m.CreateTask(context.Background(), spec)
	require.NoError(t, err)
	return created
}

func processingIDs(m *Manager) []string {
	var ids []string
	for _, t := range m.List(Filter{Statuses: []Status{StatusProcessing}}) {
		ids = append(ids, t.ID)
	}
	return ids
}
