// Package metric provides prometheus counters for the sequencer runtime.
// Every engine owns its own registry, nothing is registered globally.
// All methods are safe to call on nil receivers.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sequencer"

const (
	// TickCounter counts thread ticks.
	TickCounter = "ticks_total"
	// OverrunCounter counts ticks that took longer than the thread period.
	OverrunCounter = "overruns_total"
	// TaskQueuedCounter counts appended one-shot tasks.
	TaskQueuedCounter = "tasks_queued_total"
	// TaskLaunchedCounter counts launched tasks, cyclic included.
	TaskLaunchedCounter = "tasks_launched_total"
	// TaskFailedCounter counts tasks that returned an error or panicked.
	TaskFailedCounter = "tasks_failed_total"
	// TaskPendingGauge shows number of tasks waiting for the next tick.
	TaskPendingGauge = "tasks_pending"
	// ResolvedCounter counts resolved run instances.
	ResolvedCounter = "recalls_resolved_total"
	// UnresolvedCounter counts dependency resolution failures.
	UnresolvedCounter = "recalls_unresolved_total"
	// BufferCounter counts streamed buffers.
	BufferCounter = "buffers_total"
	// StreamFailedCounter counts failed streaming steps.
	StreamFailedCounter = "stream_failures_total"
	// TickLatency observes tick duration.
	TickLatency = "tick_seconds"
)

// Metric holds the counters of a single engine.
type Metric struct {
	registry *prometheus.Registry

	ticks        *prometheus.CounterVec
	overruns     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	queued       prometheus.Counter
	launched     prometheus.Counter
	failed       prometheus.Counter
	pending      prometheus.Gauge
	resolved     prometheus.Counter
	unresolved   prometheus.Counter
	buffers      prometheus.Counter
	streamFailed prometheus.Counter
}

// New creates a metric with a fresh registry. Name is attached to every
// counter as a constant "engine" label.
func New(name string) *Metric {
	labels := prometheus.Labels{"engine": name}
	counter := func(n, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}
	m := Metric{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        TickCounter,
			Help:        "Number of thread ticks.",
			ConstLabels: labels,
		}, []string{"thread"}),
		overruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        OverrunCounter,
			Help:        "Number of ticks longer than the thread period.",
			ConstLabels: labels,
		}, []string{"thread"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        TickLatency,
			Help:        "Duration of thread ticks.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"thread"}),
		queued:   counter(TaskQueuedCounter, "Number of appended tasks."),
		launched: counter(TaskLaunchedCounter, "Number of launched tasks."),
		failed:   counter(TaskFailedCounter, "Number of failed tasks."),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        TaskPendingGauge,
			Help:        "Number of tasks waiting for the next tick.",
			ConstLabels: labels,
		}),
		resolved:     counter(ResolvedCounter, "Number of resolved run instances."),
		unresolved:   counter(UnresolvedCounter, "Number of dependency resolution failures."),
		buffers:      counter(BufferCounter, "Number of streamed buffers."),
		streamFailed: counter(StreamFailedCounter, "Number of failed streaming steps."),
	}
	m.registry.MustRegister(
		m.ticks,
		m.overruns,
		m.latency,
		m.queued,
		m.launched,
		m.failed,
		m.pending,
		m.resolved,
		m.unresolved,
		m.buffers,
		m.streamFailed,
	)
	return &m
}

// Registry returns prometheus registry of the metric.
func (m *Metric) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TaskQueued adds n appended tasks.
func (m *Metric) TaskQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Add(float64(n))
}

// TaskLaunched counts one launched task.
func (m *Metric) TaskLaunched() {
	if m == nil {
		return
	}
	m.launched.Inc()
}

// TaskFailed counts one failed task.
func (m *Metric) TaskFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

// SetPending sets the number of pending tasks.
func (m *Metric) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// Resolved counts one resolved run instance.
func (m *Metric) Resolved() {
	if m == nil {
		return
	}
	m.resolved.Inc()
}

// Unresolved counts one resolution failure.
func (m *Metric) Unresolved() {
	if m == nil {
		return
	}
	m.unresolved.Inc()
}

// Streamed counts one streamed buffer.
func (m *Metric) Streamed() {
	if m == nil {
		return
	}
	m.buffers.Inc()
}

// StreamFailed counts one failed streaming step.
func (m *Metric) StreamFailed() {
	if m == nil {
		return
	}
	m.streamFailed.Inc()
}

// Meter captures tick counters of a single thread.
type Meter struct {
	ticks    prometheus.Counter
	overruns prometheus.Counter
	latency  prometheus.Observer
}

// Meter returns a meter for the named thread.
func (m *Metric) Meter(thread string) *Meter {
	if m == nil {
		return nil
	}
	return &Meter{
		ticks:    m.ticks.WithLabelValues(thread),
		overruns: m.overruns.WithLabelValues(thread),
		latency:  m.latency.WithLabelValues(thread),
	}
}

// Tick records a tick that took elapsed time. It returns true if the
// tick overran the period.
func (mt *Meter) Tick(elapsed, period time.Duration) bool {
	overrun := elapsed > period
	if mt == nil {
		return overrun
	}
	mt.ticks.Inc()
	mt.latency.Observe(elapsed.Seconds())
	if overrun {
		mt.overruns.Inc()
	}
	return overrun
}
