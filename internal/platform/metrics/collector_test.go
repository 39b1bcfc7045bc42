package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/task"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats task.Stats

func (f fixedStats) Stats() task.Stats { return task.Stats(f) }

func taskEvent(t *testing.T, eventType string, snap task.Task) *events.TaskEvent {
	t.Helper()
	event, err := events.NewTaskEvent(eventType, snap.ID, snap)
	require.NoError(t, err)
	return event
}

func TestCollector_CountsEvents(t *testing.T) {
	c := NewCollector(fixedStats{}, 3)
	ctx := context.Background()

	img := task.Task{ID: "a", Type: task.TypeImage, Status: task.StatusCompleted, CreditCost: 4, Elapsed: 5 * time.Second}
	vid := task.Task{ID: "b", Type: task.TypeVideo, Status: task.StatusFailed, Elapsed: 12 * time.Second}

	require.NoError(t, c.HandleEvent(ctx, taskEvent(t, events.TaskCreated, img)))
	require.NoError(t, c.HandleEvent(ctx, taskEvent(t, events.TaskCompleted, img)))
	require.NoError(t, c.HandleEvent(ctx, taskEvent(t, events.TaskFailed, vid)))
	require.NoError(t, c.HandleEvent(ctx, taskEvent(t, events.TaskRetried, vid)))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(events.TaskCompleted, "image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(events.TaskFailed, "video")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.creditsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retriesTotal.WithLabelValues("video")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runSeconds))
}

func TestCollector_BadPayload(t *testing.T) {
	c := NewCollector(fixedStats{}, 3)

	event := &events.TaskEvent{Type: events.TaskCompleted, Payload: json.RawMessage(`"not a task"`)}
	err := c.HandleEvent(context.Background(), event)

	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handlerFailure))
}

func TestCollector_GaugesReadStats(t *testing.T) {
	c := NewCollector(fixedStats{Total: 7, Queued: 4, Processing: 2}, 2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "genqueue_scheduler_tasks_queued 4"), text)
	assert.True(t, strings.Contains(text, "genqueue_scheduler_tasks_processing 2"))
	assert.True(t, strings.Contains(text, "genqueue_scheduler_tasks_total 7"))
	assert.True(t, strings.Contains(text, "genqueue_scheduler_slots 2"))
}
