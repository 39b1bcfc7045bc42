package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTicker counts the calls a Runner makes
type MockTicker struct {
	ticks  atomic.Int32
	admits atomic.Int32
}

func (m *MockTicker) Tick(context.Context) {
	m.ticks.Add(1)
}

func (m *MockTicker) Admit(context.Context) []Task {
	m.admits.Add(1)
	return nil
}

func TestRunner_TicksPeriodically(t *testing.T) {
	t.Parallel()

	target := &MockTicker{}
	runner := NewRunner(target, 5*time.Millisecond, testLogger())

	require.NoError(t, runner.Start())
	assert.ErrorIs(t, runner.Start(), ErrRunnerStarted)

	assert.Eventually(t, func() bool {
		return target.ticks.Load() >= 3
	}, time.Second, time.Millisecond)

	runner.Stop()
	stopped := target.ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, target.ticks.Load(), "no ticks after Stop")

	// stopping twice is harmless
	runner.Stop()
}

func TestRunner_NudgeAdmits(t *testing.T) {
	t.Parallel()

	target := &MockTicker{}
	runner := NewRunner(target, time.Hour, testLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	runner.Nudge()

	assert.Eventually(t, func() bool {
		return target.admits.Load() >= 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, target.ticks.Load())
}

func TestRunner_NudgeNeverBlocks(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&MockTicker{}, time.Hour, testLogger())

	done := make(chan struct{})
	go func() {
		for range 100 {
			runner.Nudge()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nudge blocked without a running loop")
	}
}

func TestRunner_HandleEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType string
		nudges    bool
	}{
		{events.TaskCreated, true},
		{events.TaskRetried, true},
		{events.TaskCompleted, true},
		{events.TaskFailed, true},
		{events.TaskCancelled, true},
		{events.TaskDeleted, true},
		{events.TaskStarted, false},
	}

	for _, tc := range tests {
		t.Run(tc.eventType, func(t *testing.T) {
			t.Parallel()

			runner := NewRunner(&MockTicker{}, time.Hour, testLogger())
			event, err := events.NewTaskEvent(tc.eventType, "task-1", nil)
			require.NoError(t, err)

			require.NoError(t, runner.HandleEvent(context.Background(), event))
			assert.Equal(t, tc.nudges, len(runner.nudge) == 1)
		})
	}
}

func TestRunner_EndToEndWithManager(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryEventEmitter(testLogger())
	config := DefaultManagerConfig()
	config.MaxConcurrentTasks = 2
	m := newTestManager(t, config, alwaysSucceed, WithEmitter(emitter))

	runner := NewRunner(m, 2*time.Millisecond, testLogger())
	emitter.RegisterHandler(runner)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	for range 4 {
		mustCreate(t, m, newSpec(PriorityNormal, 3*time.Second))
	}

	assert.Eventually(t, func() bool {
		return m.Stats().Completed == 4
	}, 2*time.Second, 2*time.Millisecond)
}

func TestNewRunner_DefaultsInvalidInterval(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&MockTicker{}, 0, testLogger())
	assert.Equal(t, DefaultTickInterval, runner.interval)
}
