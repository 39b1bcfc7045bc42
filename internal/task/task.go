package task

import (
	"encoding/json"
	"maps"
	"time"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether a task in this status will not run again
// without an explicit retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Type identifies the kind of generation job
type Type string

// Supported generation job types
const (
	TypeImage             Type = "image"
	TypeVideo             Type = "video"
	TypeUpscale           Type = "upscale"
	TypeFaceSwap          Type = "face-swap"
	TypeBackgroundRemoval Type = "background-removal"
	TypeStyleTransfer     Type = "style-transfer"
)

// Types lists every supported job type.
var Types = []Type{
	TypeImage,
	TypeVideo,
	TypeUpscale,
	TypeFaceSwap,
	TypeBackgroundRemoval,
	TypeStyleTransfer,
}

// ProducesImage reports whether the job's artifact is a still image.
func (t Type) ProducesImage() bool {
	return t != TypeVideo
}

// Priority orders waiting tasks. It is fixed at creation.
type Priority string

// Task priorities
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// rank returns the scheduling rank of a priority; lower runs first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// Input describes the source material of a job. The scheduler never
// interprets it; resolvers do.
type Input struct {
	Prompt   string            `json:"prompt,omitempty" validate:"required_without_all=ImageURL VideoURL,max=4000"`
	ImageURL string            `json:"image_url,omitempty" validate:"omitempty,url"`
	VideoURL string            `json:"video_url,omitempty" validate:"omitempty,url"`
	Params   map[string]string `json:"params,omitempty"`
}

// Output describes the artifact produced by a completed job
type Output struct {
	ResultURL    string `json:"result_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
}

// Task is a snapshot of one generation job.
//
// Snapshots are plain values: changing one never affects the registry.
// Output is set only when Status is completed, Error only when Status is
// failed, and Progress reaches 100 only on completion.
type Task struct {
	ID                string        `json:"id"`
	Type              Type          `json:"type"`
	Status            Status        `json:"status"`
	Priority          Priority      `json:"priority"`
	Input             Input         `json:"input"`
	Output            *Output       `json:"output,omitempty"`
	Progress          int           `json:"progress"`
	EstimatedDuration time.Duration `json:"-"`
	Elapsed           time.Duration `json:"-"`
	CreditCost        int           `json:"credit_cost"`
	CreatedAt         time.Time     `json:"created_at"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	Error             string        `json:"error,omitempty"`
	RetryCount        int           `json:"retry_count"`
	MaxRetries        int           `json:"max_retries"`
}

// taskJSON carries the durations as seconds, the unit callers work in.
type taskJSON struct {
	EstimatedDuration float64 `json:"estimated_duration"`
	Elapsed           float64 `json:"elapsed"`
}

// MarshalJSON encodes the task with durations expressed in seconds.
func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		taskJSON
	}{
		plain: plain(t),
		taskJSON: taskJSON{
			EstimatedDuration: t.EstimatedDuration.Seconds(),
			Elapsed:           t.Elapsed.Seconds(),
		},
	})
}

// UnmarshalJSON decodes a task produced by MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	aux := struct {
		*plain
		taskJSON
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.EstimatedDuration = secondsToDuration(aux.taskJSON.EstimatedDuration)
	t.Elapsed = secondsToDuration(aux.taskJSON.Elapsed)
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// clone returns a deep copy so callers never alias registry state.
func (t *Task) clone() Task {
	c := *t
	c.Input.Params = maps.Clone(t.Input.Params)
	if t.Output != nil {
		out := *t.Output
		c.Output = &out
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return c
}

// Spec is a request to create a task
type Spec struct {
	Type              Type          `json:"type" validate:"required,oneof=image video upscale face-swap background-removal style-transfer"`
	Priority          Priority      `json:"priority" validate:"required,oneof=low normal high"`
	Input             Input         `json:"input"`
	EstimatedDuration time.Duration `json:"-"`
	CreditCost        int           `json:"credit_cost" validate:"gte=0"`
	// MaxRetries overrides the registry default when set
	MaxRetries *int `json:"max_retries,omitempty" validate:"omitempty,gte=0"`
}

// Stats aggregates the registry at one instant
type Stats struct {
	Total            int `json:"total"`
	Queued           int `json:"queued"`
	Processing       int `json:"processing"`
	Completed        int `json:"completed"`
	Failed           int `json:"failed"`
	Cancelled        int `json:"cancelled"`
	TotalCreditsUsed int `json:"total_credits_used"`
}

func (s *Stats) add(t *Task) {
	s.Total++
	switch t.Status {
	case StatusQueued:
		s.Queued++
	case StatusProcessing:
		s.Processing++
	case StatusCompleted:
		s.Completed++
		s.TotalCreditsUsed += t.CreditCost
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	}
}
