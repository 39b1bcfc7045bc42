package task

import (
	"fmt"
	"time"
)

// Mutation is a state transition intent submitted to Registry.Update.
//
// The set of mutations is closed: Promote, Advance, Complete, Fail, Cancel
// and Retry. Each validates the current state before changing anything, so
// a rejected mutation leaves the task exactly as it was.
type Mutation interface {
	// Name identifies the mutation in logs and errors
	Name() string
	apply(t *Task, now time.Time) error
}

// Promote moves a queued task into an execution slot
type Promote struct{}

// Advance adds elapsed running time to a processing task
type Advance struct {
	By time.Duration
}

// Complete records a successful outcome
type Complete struct {
	Output Output
}

// Fail records an unsuccessful outcome
type Fail struct {
	Reason string
}

// Cancel stops a queued or processing task
type Cancel struct{}

// Retry sends a failed or cancelled task back to the queue
type Retry struct{}

func (Promote) Name() string  { return "promote" }
func (Advance) Name() string  { return "advance" }
func (Complete) Name() string { return "complete" }
func (Fail) Name() string     { return "fail" }
func (Cancel) Name() string   { return "cancel" }
func (Retry) Name() string    { return "retry" }

func invalidTransition(m Mutation, from Status) error {
	return fmt.Errorf("%w: cannot %s a %s task", ErrInvalidTransition, m.Name(), from)
}

func (m Promote) apply(t *Task, now time.Time) error {
	if t.Status != StatusQueued {
		return invalidTransition(m, t.Status)
	}
	t.Status = StatusProcessing
	t.StartedAt = &now
	return nil
}

func (m Advance) apply(t *Task, _ time.Time) error {
	if t.Status != StatusProcessing {
		return invalidTransition(m, t.Status)
	}
	if m.By < 0 {
		return fmt.Errorf("%w: negative advance %s", ErrInvalidTransition, m.By)
	}
	t.Elapsed += m.By
	if t.EstimatedDuration > 0 {
		pct := int(t.Elapsed * 100 / t.EstimatedDuration)
		t.Progress = max(t.Progress, min(99, pct))
	}
	return nil
}

func (m Complete) apply(t *Task, now time.Time) error {
	if t.Status != StatusProcessing {
		return invalidTransition(m, t.Status)
	}
	if m.Output.ResultURL == "" {
		return fmt.Errorf("%w: completion requires a result url", ErrInvalidTransition)
	}
	out := m.Output
	t.Status = StatusCompleted
	t.Progress = 100
	t.Output = &out
	t.CompletedAt = &now
	return nil
}

func (m Fail) apply(t *Task, now time.Time) error {
	if t.Status != StatusProcessing {
		return invalidTransition(m, t.Status)
	}
	reason := m.Reason
	if reason == "" {
		reason = defaultFailureReason
	}
	t.Status = StatusFailed
	t.Error = reason
	t.CompletedAt = &now
	return nil
}

func (m Cancel) apply(t *Task, now time.Time) error {
	if t.Status != StatusQueued && t.Status != StatusProcessing {
		return invalidTransition(m, t.Status)
	}
	t.Status = StatusCancelled
	t.CompletedAt = &now
	return nil
}

func (m Retry) apply(t *Task, _ time.Time) error {
	if t.Status != StatusFailed && t.Status != StatusCancelled {
		return invalidTransition(m, t.Status)
	}
	if t.RetryCount >= t.MaxRetries {
		return fmt.Errorf("%w: %d of %d retries used", ErrRetryLimitExceeded, t.RetryCount, t.MaxRetries)
	}
	t.Status = StatusQueued
	t.Progress = 0
	t.Elapsed = 0
	t.Error = ""
	t.Output = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	t.RetryCount++
	return nil
}
