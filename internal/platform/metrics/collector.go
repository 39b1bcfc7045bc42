// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genqueue"

// StatsSource provides the current aggregate view of the registry
type StatsSource interface {
	Stats() task.Stats
}

// Collector counts lifecycle events and reports live task gauges. It is an
// events.EventHandler; each instance owns its own registry.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	creditsTotal   prometheus.Counter
	runSeconds     *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	handlerFailure prometheus.Counter
}

// NewCollector registers the scheduler metrics. Gauges read stats on every
// scrape.
func NewCollector(stats StatsSource, maxConcurrent int) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "events_total",
			Help:      "Task lifecycle events, labelled by event and task type.",
		}, []string{"event", "task_type"}),

		creditsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "credits_charged_total",
			Help:      "Credits charged for completed tasks.",
		}),

		runSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "run_seconds",
			Help:      "Simulated running time of finished tasks in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"task_type", "status"}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "retries_total",
			Help:      "Total retry requests accepted.",
		}, []string{"task_type"}),

		handlerFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "decode_failures_total",
			Help:      "Events whose payload could not be decoded.",
		}),
	}

	gauge := func(name, help string, value func(task.Stats) int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats.Stats())) })
	}
	gauge("tasks_queued", "Tasks waiting for a slot.", func(s task.Stats) int { return s.Queued })
	gauge("tasks_processing", "Tasks holding a slot.", func(s task.Stats) int { return s.Processing })
	gauge("tasks_total", "Tasks in the registry.", func(s task.Stats) int { return s.Total })

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "slots",
		Help:      "Configured execution slots.",
	}).Set(float64(maxConcurrent))

	return c
}

// Registry returns the registry holding every metric of this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HandleEvent updates counters from a lifecycle event.
func (c *Collector) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	var t task.Task
	if err := event.UnmarshalPayload(&t); err != nil {
		c.handlerFailure.Inc()
		return fmt.Errorf("failed to decode task payload of event %s: %w", event.ID, err)
	}

	c.eventsTotal.WithLabelValues(event.Type, string(t.Type)).Inc()

	switch event.Type {
	case events.TaskCompleted:
		c.creditsTotal.Add(float64(t.CreditCost))
		c.runSeconds.WithLabelValues(string(t.Type), string(t.Status)).Observe(t.Elapsed.Seconds())
	case events.TaskFailed:
		c.runSeconds.WithLabelValues(string(t.Type), string(t.Status)).Observe(t.Elapsed.Seconds())
	case events.TaskRetried:
		c.retriesTotal.WithLabelValues(string(t.Type)).Inc()
	}
	return nil
}
