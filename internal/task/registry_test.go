package task

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(DefaultMaxRetries, newSteppedClock().Now, testLogger())
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	spec := newSpec(PriorityHigh, 5*time.Second)
	spec.Input.Params = map[string]string{"aspect_ratio": "16:9"}

	created, err := r.Create(spec)
	require.NoError(t, err)

	id, err := uuid.Parse(created.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, StatusQueued, created.Status)
	assert.Equal(t, PriorityHigh, created.Priority)
	assert.Zero(t, created.Progress)
	assert.Zero(t, created.Elapsed)
	assert.Zero(t, created.RetryCount)
	assert.Equal(t, DefaultMaxRetries, created.MaxRetries)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.StartedAt)
	assert.Nil(t, created.Output)

	// the caller's map is not shared with the registry
	spec.Input.Params["aspect_ratio"] = "1:1"
	stored, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "16:9", stored.Input.Params["aspect_ratio"])
}

func TestRegistry_Create_MaxRetriesOverride(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	spec := newSpec(PriorityNormal, time.Second)
	spec.MaxRetries = intPtr(0)

	created, err := r.Create(spec)
	require.NoError(t, err)
	assert.Zero(t, created.MaxRetries)
}

func TestRegistry_Create_InvalidSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"missing type", func(s *Spec) { s.Type = "" }},
		{"unknown type", func(s *Spec) { s.Type = "audio" }},
		{"unknown priority", func(s *Spec) { s.Priority = "urgent" }},
		{"empty input", func(s *Spec) { s.Input = Input{} }},
		{"malformed image url", func(s *Spec) { s.Input.ImageURL = "not a url" }},
		{"zero duration", func(s *Spec) { s.EstimatedDuration = 0 }},
		{"negative duration", func(s *Spec) { s.EstimatedDuration = -time.Second }},
		{"negative credit cost", func(s *Spec) { s.CreditCost = -1 }},
		{"negative max retries", func(s *Spec) { s.MaxRetries = intPtr(-1) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRegistry()
			spec := newSpec(PriorityNormal, 5*time.Second)
			tc.mutate(&spec)

			_, err := r.Create(spec)
			assert.ErrorIs(t, err, ErrInvalidSpec)
			assert.Zero(t, r.Stats().Total)
		})
	}
}

func TestRegistry_Create_ImageOnlyInput(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	spec := newSpec(PriorityNormal, time.Second)
	spec.Type = TypeUpscale
	spec.Input = Input{ImageURL: "https://cdn.test/source.jpg"}

	_, err := r.Create(spec)
	assert.NoError(t, err)
}

func TestRegistry_GetReturnsCopies(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	created, err := r.Create(newSpec(PriorityNormal, time.Second))
	require.NoError(t, err)
	_, err = r.Update(created.ID, Promote{})
	require.NoError(t, err)

	snap, err := r.Get(created.ID)
	require.NoError(t, err)
	snap.Status = StatusCompleted
	*snap.StartedAt = time.Time{}

	again, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, again.Status)
	assert.False(t, again.StartedAt.IsZero())
}

func TestRegistry_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update("missing", Cancel{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Delete("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ListCreationOrderAndFilter(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	var ids []string
	for _, typ := range []Type{TypeImage, TypeVideo, TypeImage, TypeUpscale} {
		spec := newSpec(PriorityLow, time.Second)
		spec.Type = typ
		created, err := r.Create(spec)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	_, err := r.Update(ids[1], Cancel{})
	require.NoError(t, err)

	all := r.List(Filter{})
	require.Len(t, all, 4)
	for i, task := range all {
		assert.Equal(t, ids[i], task.ID)
	}

	images := r.List(Filter{Types: []Type{TypeImage}})
	require.Len(t, images, 2)
	assert.Equal(t, ids[0], images[0].ID)
	assert.Equal(t, ids[2], images[1].ID)

	queuedImages := r.List(Filter{
		Statuses: []Status{StatusQueued},
		Types:    []Type{TypeImage, TypeVideo},
	})
	assert.Len(t, queuedImages, 2)

	cancelled := r.List(Filter{Statuses: []Status{StatusCancelled}})
	require.Len(t, cancelled, 1)
	assert.Equal(t, ids[1], cancelled[0].ID)

	// date range is inclusive on both ends
	windowed := r.List(Filter{From: all[1].CreatedAt, To: all[2].CreatedAt})
	require.Len(t, windowed, 2)
	assert.Equal(t, ids[1], windowed[0].ID)
	assert.Equal(t, ids[2], windowed[1].ID)
}

func TestRegistry_DeleteAndClear(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	var ids []string
	for range 4 {
		created, err := r.Create(newSpec(PriorityNormal, time.Second))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	// ids[0] completed, ids[1] failed, ids[2] queued, ids[3] completed
	for _, id := range []string{ids[0], ids[1], ids[3]} {
		_, err := r.Update(id, Promote{})
		require.NoError(t, err)
	}
	_, err := r.Update(ids[0], Complete{Output: Output{ResultURL: "https://cdn.test/0.png"}})
	require.NoError(t, err)
	_, err = r.Update(ids[1], Fail{Reason: "boom"})
	require.NoError(t, err)
	_, err = r.Update(ids[3], Complete{Output: Output{ResultURL: "https://cdn.test/3.png"}})
	require.NoError(t, err)

	removed := r.ClearCompleted()
	require.Len(t, removed, 2)
	assert.Equal(t, ids[0], removed[0].ID)
	assert.Equal(t, ids[3], removed[1].ID)

	remaining := r.List(Filter{})
	require.Len(t, remaining, 2)
	assert.Equal(t, ids[1], remaining[0].ID)
	assert.Equal(t, ids[2], remaining[1].ID)

	deleted, err := r.Delete(ids[1])
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, deleted.Status)
	_, err = r.Get(ids[1])
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, r.ClearAll(), 1)
	assert.Empty(t, r.List(Filter{}))
	assert.Zero(t, r.Stats().Total)
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	costs := []int{3, 5, 7, 11, 13}
	var ids []string
	for _, c := range costs {
		spec := newSpec(PriorityNormal, time.Second)
		spec.CreditCost = c
		created, err := r.Create(spec)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	for _, id := range ids[:3] {
		_, err := r.Update(id, Promote{})
		require.NoError(t, err)
	}
	_, err := r.Update(ids[0], Complete{Output: Output{ResultURL: "https://cdn.test/a.png"}})
	require.NoError(t, err)
	_, err = r.Update(ids[1], Fail{Reason: "boom"})
	require.NoError(t, err)
	_, err = r.Update(ids[3], Cancel{})
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, Stats{
		Total:            5,
		Queued:           1,
		Processing:       1,
		Completed:        1,
		Failed:           1,
		Cancelled:        1,
		TotalCreditsUsed: 3,
	}, stats)
	assert.Equal(t, len(r.List(Filter{})), stats.Total)
	assert.Equal(t, 1, r.Count(StatusProcessing))
}

func TestRegistry_ConcurrentUpdatesAreSerialised(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	created, err := r.Create(newSpec(PriorityNormal, time.Hour))
	require.NoError(t, err)
	_, err = r.Update(created.ID, Promote{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(created.ID, Advance{By: time.Second})
		}()
	}
	wg.Wait()

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, got.Elapsed)
}
