// Package metrics provides Prometheus metrics for the narrative pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds the Prometheus collectors the pipeline emits.
type Manager struct {
	registry *prometheus.Registry

	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	runsFailed     prometheus.Counter
	runsRejected   prometheus.Counter
	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	renderAttempts prometheus.Counter
	renderFailures prometheus.Counter
	versionsStored prometheus.Counter
	versionsNoop   prometheus.Counter
}

// New builds a Manager with its own registry so tests stay isolated.
func New() *Manager {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Manager{
		registry: registry,
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "runs_started_total",
			Help:      "Pipeline runs started.",
		}),
		runsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "runs_completed_total",
			Help:      "Pipeline runs that reached completed status.",
		}),
		runsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "runs_failed_total",
			Help:      "Pipeline runs that reached failed status.",
		}),
		runsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "runs_rejected_total",
			Help:      "Run triggers rejected because a run was already in flight.",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Stage executions that resolved to failed.",
		}, []string{"stage"}),
		renderAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "render",
			Name:      "attempts_total",
			Help:      "Calls to the text-generation capability, including retries.",
		}),
		renderFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "render",
			Name:      "failures_total",
			Help:      "Blocks whose narrative degraded to null after retries.",
		}),
		versionsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "publish",
			Name:      "versions_stored_total",
			Help:      "New payload versions written.",
		}),
		versionsNoop: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "courtline",
			Subsystem: "publish",
			Name:      "versions_noop_total",
			Help:      "Publishes skipped because the payload hash was unchanged.",
		}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RunStarted records a run entering the running state.
func (m *Manager) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted records a run reaching completed status.
func (m *Manager) RunCompleted() {
	if m == nil {
		return
	}
	m.runsCompleted.Inc()
}

// RunFailed records a run reaching failed status.
func (m *Manager) RunFailed() {
	if m == nil {
		return
	}
	m.runsFailed.Inc()
}

// RunRejected records a trigger rejected by the per-game guard.
func (m *Manager) RunRejected() {
	if m == nil {
		return
	}
	m.runsRejected.Inc()
}

// ObserveStage records one stage execution.
func (m *Manager) ObserveStage(stage string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
	if failed {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RenderAttempt records one call to the generation capability.
func (m *Manager) RenderAttempt() {
	if m == nil {
		return
	}
	m.renderAttempts.Inc()
}

// RenderFailure records a block degrading to a null narrative.
func (m *Manager) RenderFailure() {
	if m == nil {
		return
	}
	m.renderFailures.Inc()
}

// VersionStored records a new payload version write.
func (m *Manager) VersionStored() {
	if m == nil {
		return
	}
	m.versionsStored.Inc()
}

// VersionNoop records an idempotent publish with no new version.
func (m *Manager) VersionNoop() {
	if m == nil {
		return
	}
	m.versionsNoop.Inc()
}
