// Package metrics exports run outcomes in the Prometheus text format for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HerbHall/cellwatch/internal/report"
)

const namespace = "cellwatch"

// Exporter holds a private registry of run metrics.
type Exporter struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
	steps    *prometheus.GaugeVec
}

// New builds an Exporter with all collectors registered.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of each kind finished.",
		}, []string{"kind"}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each step in the most recent run.",
		}, []string{"kind", "step"}),
	}
	e.registry.MustRegister(e.runs, e.lastRun, e.steps)
	return e
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Seed adds n prior runs to the runs counter, so a short-lived process can
// export totals carried over from the journal.
func (e *Exporter) Seed(kind report.Kind, outcome report.Outcome, n int) {
	if n > 0 {
		e.runs.WithLabelValues(string(kind), string(outcome)).Add(float64(n))
	}
}

// Observe folds a finished report into the collectors.
func (e *Exporter) Observe(rep *report.Report) {
	kind := string(rep.Kind)
	e.runs.WithLabelValues(kind, string(rep.Outcome)).Inc()
	if !rep.FinishedAt.IsZero() {
		e.lastRun.WithLabelValues(kind).Set(float64(rep.FinishedAt.UnixNano()) / 1e9)
	}
	for _, s := range rep.Steps {
		e.steps.WithLabelValues(kind, s.Name).Set(s.Duration.Seconds())
	}
}

// WriteTextfile writes the registry to path atomically.
func (e *Exporter) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create textfile dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
