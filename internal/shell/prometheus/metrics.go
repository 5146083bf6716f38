package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/stackdeploy/internal/core/sequencer"
)

// RunMetrics holds the gauges describing one deployment run. Written to a
// textfile, they are picked up by node_exporter's textfile collector.
type RunMetrics struct {
	registry     *prometheus.Registry
	stepDuration *prometheus.GaugeVec
	stepStatus   *prometheus.GaugeVec
	stepAttempts *prometheus.GaugeVec
	success      prometheus.Gauge
	finished     prometheus.Gauge
}

// NewRunMetrics registers the run gauges for project on a private registry.
func NewRunMetrics(project string) *RunMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"project": project}

	return &RunMetrics{
		registry: registry,
		stepDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "stackdeploy_step_duration_seconds",
			Help:        "Wall time spent in each deployment step of the last run.",
			ConstLabels: labels,
		}, []string{"step"}),
		stepStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "stackdeploy_step_status",
			Help:        "Outcome of each deployment step of the last run; 1 for the reported status.",
			ConstLabels: labels,
		}, []string{"step", "status"}),
		stepAttempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "stackdeploy_step_readiness_attempts",
			Help:        "Readiness probe invocations spent in each step of the last run.",
			ConstLabels: labels,
		}, []string{"step"}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "stackdeploy_last_run_success",
			Help:        "1 if the last deployment run completed without a fatal failure.",
			ConstLabels: labels,
		}),
		finished: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "stackdeploy_last_run_timestamp_seconds",
			Help:        "Unix time the last deployment run finished.",
			ConstLabels: labels,
		}),
	}
}

// Observe records report.
func (m *RunMetrics) Observe(report *sequencer.Report) {
	for _, s := range report.Steps {
		m.stepDuration.WithLabelValues(s.Name).Set(s.Duration.Seconds())
		m.stepStatus.WithLabelValues(s.Name, string(s.Status)).Set(1)
		m.stepAttempts.WithLabelValues(s.Name).Set(float64(s.Attempts))
	}
	if report.Succeeded() {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.finished.Set(float64(report.FinishedAt.Unix()))
}

// WriteTextfile atomically writes the gathered metrics to path.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Gatherer exposes the underlying registry.
func (m *RunMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
