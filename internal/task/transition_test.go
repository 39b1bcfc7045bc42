package task

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutations_AllowedFromStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	statuses := []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

	tests := []struct {
		mutation Mutation
		allowed  []Status
		want     Status
	}{
		{Promote{}, []Status{StatusQueued}, StatusProcessing},
		{Advance{By: time.Second}, []Status{StatusProcessing}, StatusProcessing},
		{Complete{Output: Output{ResultURL: "https://cdn.test/x.png"}}, []Status{StatusProcessing}, StatusCompleted},
		{Fail{Reason: "boom"}, []Status{StatusProcessing}, StatusFailed},
		{Cancel{}, []Status{StatusQueued, StatusProcessing}, StatusCancelled},
		{Retry{}, []Status{StatusFailed, StatusCancelled}, StatusQueued},
	}

	for _, tc := range tests {
		for _, from := range statuses {
			name := tc.mutation.Name() + "_from_" + string(from)
			t.Run(name, func(t *testing.T) {
				task := &Task{
					Status:            from,
					EstimatedDuration: 10 * time.Second,
					MaxRetries:        3,
				}
				before := task.clone()

				err := tc.mutation.apply(task, now)

				if slices.Contains(tc.allowed, from) {
					require.NoError(t, err)
					assert.Equal(t, tc.want, task.Status)
					return
				}
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, before, *task, "rejected mutation must not change the task")
			})
		}
	}
}

func TestAdvance_ProgressCappedBelowCompletion(t *testing.T) {
	t.Parallel()

	task := &Task{Status: StatusProcessing, EstimatedDuration: 4 * time.Second}

	var seen []int
	for range 6 {
		require.NoError(t, Advance{By: time.Second}.apply(task, time.Time{}))
		seen = append(seen, task.Progress)
	}

	assert.Equal(t, []int{25, 50, 75, 99, 99, 99}, seen)
	assert.Equal(t, 6*time.Second, task.Elapsed)
}

func TestAdvance_NeverDecreasesProgress(t *testing.T) {
	t.Parallel()

	task := &Task{Status: StatusProcessing, EstimatedDuration: 10 * time.Second, Progress: 60}

	require.NoError(t, Advance{By: time.Second}.apply(task, time.Time{}))
	assert.Equal(t, 60, task.Progress)
}

func TestAdvance_RejectsNegativeDuration(t *testing.T) {
	t.Parallel()

	task := &Task{Status: StatusProcessing, EstimatedDuration: 10 * time.Second}

	err := Advance{By: -time.Second}.apply(task, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, task.Elapsed)
}

func TestComplete_RequiresResultURL(t *testing.T) {
	t.Parallel()

	task := &Task{Status: StatusProcessing}

	err := Complete{}.apply(task, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.Nil(t, task.Output)
}

func TestComplete_SetsOutputAndProgress(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{Status: StatusProcessing, Progress: 80}

	require.NoError(t, Complete{Output: Output{ResultURL: "https://cdn.test/a.png"}}.apply(task, now))
	assert.Equal(t, 100, task.Progress)
	require.NotNil(t, task.Output)
	assert.Equal(t, "https://cdn.test/a.png", task.Output.ResultURL)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, now, *task.CompletedAt)
}

func TestFail_DefaultReasonAndProgressKept(t *testing.T) {
	t.Parallel()

	task := &Task{Status: StatusProcessing, Progress: 42}

	require.NoError(t, Fail{}.apply(task, time.Now()))
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, defaultFailureReason, task.Error)
	assert.Equal(t, 42, task.Progress)
	assert.NotNil(t, task.CompletedAt)
}

func TestRetry_ResetsRunState(t *testing.T) {
	t.Parallel()

	started := time.Now()
	task := &Task{
		Status:      StatusFailed,
		Progress:    70,
		Elapsed:     7 * time.Second,
		Error:       "boom",
		StartedAt:   &started,
		CompletedAt: &started,
		MaxRetries:  1,
	}

	require.NoError(t, Retry{}.apply(task, time.Now()))
	assert.Equal(t, StatusQueued, task.Status)
	assert.Zero(t, task.Progress)
	assert.Zero(t, task.Elapsed)
	assert.Empty(t, task.Error)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.Output)
	assert.Equal(t, 1, task.RetryCount)

	task.Status = StatusFailed
	err := Retry{}.apply(task, time.Now())
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 1, task.RetryCount)
}
