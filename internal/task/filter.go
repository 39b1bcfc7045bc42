package task

import (
	"slices"
	"time"
)

// Filter selects tasks for List. All set criteria must hold; a zero
// Filter matches every task.
type Filter struct {
	Statuses []Status
	Types    []Type
	// From and To bound CreatedAt inclusively; a zero bound is open.
	From time.Time
	To   time.Time
}

// Matches reports whether t satisfies every criterion of f.
func (f Filter) Matches(t *Task) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedAt.After(f.To) {
		return false
	}
	return true
}
