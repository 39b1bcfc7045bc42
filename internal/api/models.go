package api

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/genqueue/internal/task"
)

// CreateTaskRequest is the body of POST /api/tasks. Field rules beyond the
// duration are checked by the task registry.
type CreateTaskRequest struct {
	Type     task.Type     `json:"type"`
	Priority task.Priority `json:"priority"`
	Input    task.Input    `json:"input"`
	// EstimatedDurationSeconds is the expected running time in seconds
	EstimatedDurationSeconds float64 `json:"estimated_duration_seconds" validate:"gt=0"`
	CreditCost               int     `json:"credit_cost"`
	MaxRetries               *int    `json:"max_retries,omitempty"`
}

// ToSpec converts the request into a task.Spec. An empty priority means
// normal.
func (r CreateTaskRequest) ToSpec() task.Spec {
	priority := r.Priority
	if priority == "" {
		priority = task.PriorityNormal
	}
	return task.Spec{
		Type:              r.Type,
		Priority:          priority,
		Input:             r.Input,
		EstimatedDuration: time.Duration(r.EstimatedDurationSeconds * float64(time.Second)),
		CreditCost:        r.CreditCost,
		MaxRetries:        r.MaxRetries,
	}
}

// ListTasksResponse is the body of GET /api/tasks
type ListTasksResponse struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
}

// ClearResponse reports how many tasks a clear operation removed
type ClearResponse struct {
	Removed int `json:"removed"`
}

// ParseFilter builds a task.Filter from the query parameters status, type
// (comma separated), from and to (RFC 3339).
func ParseFilter(q url.Values) (task.Filter, error) {
	var f task.Filter

	for _, s := range splitList(q.Get("status")) {
		status := task.Status(s)
		if !slices.Contains(task.Statuses, status) {
			return task.Filter{}, fmt.Errorf("unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, status)
	}

	for _, s := range splitList(q.Get("type")) {
		typ := task.Type(s)
		if !slices.Contains(task.Types, typ) {
			return task.Filter{}, fmt.Errorf("unknown type %q", s)
		}
		f.Types = append(f.Types, typ)
	}

	var err error
	if f.From, err = parseTime(q, "from"); err != nil {
		return task.Filter{}, err
	}
	if f.To, err = parseTime(q, "to"); err != nil {
		return task.Filter{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return task.Filter{}, fmt.Errorf("to must not be before from")
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: expected RFC 3339 timestamp", key)
	}
	return t, nil
}
