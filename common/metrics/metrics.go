// Package metrics defines the prometheus collectors shared by the service
// and its workers. Collectors live on their own registry so tests can build
// independent instances.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome label values
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds every collector exported on the telemetry port
type Metrics struct {
	Registry *prometheus.Registry

	IngestStages     *prometheus.CounterVec
	Resolves         *prometheus.CounterVec
	DispatchInflight prometheus.Gauge
	WorkItems        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		IngestStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "ingest_stage_total",
			Help:      "Upload pipeline stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "resolve_total",
			Help:      "Identity resolutions by outcome.",
		}, []string{"outcome"}),
		DispatchInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mosaic",
			Name:      "dispatch_inflight",
			Help:      "Enqueue jobs currently running in the dispatcher.",
		}),
		WorkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "work_items_total",
			Help:      "Work items handled by the worker by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.IngestStages,
		m.Resolves,
		m.DispatchInflight,
		m.WorkItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Stage records one pipeline stage execution
func (m *Metrics) Stage(stage string, err error) {
	if m == nil {
		return
	}
	m.IngestStages.WithLabelValues(stage, outcome(err)).Inc()
}

// StageSkipped records a stage that did not run for an input
func (m *Metrics) StageSkipped(stage string) {
	if m == nil {
		return
	}
	m.IngestStages.WithLabelValues(stage, OutcomeSkipped).Inc()
}

// Resolve records one identity resolution
func (m *Metrics) Resolve(err error) {
	if m == nil {
		return
	}
	m.Resolves.WithLabelValues(outcome(err)).Inc()
}

// WorkItem records one consumed work item
func (m *Metrics) WorkItem(err error) {
	if m == nil {
		return
	}
	m.WorkItems.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
