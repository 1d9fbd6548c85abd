package monitoring

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// Metrics holds the worker's Prometheus counters. It satisfies the task
// observer interface and feeds the extractors' retry hook.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	failedAttempts *prometheus.CounterVec
	pageRetries    *prometheus.CounterVec
}

// NewMetrics registers the counters on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disclosure_runs_total",
				Help: "Ingestion runs finished, by final status",
			},
			[]string{"status"},
		),
		recordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disclosure_records_total",
				Help: "Records processed by finished runs, by outcome",
			},
			[]string{"outcome"}, // saved, skipped_duplicate, error
		),
		failedAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disclosure_run_attempts_failed_total",
				Help: "Run attempts that failed on infrastructure, by chamber and error class",
			},
			[]string{"chamber", "class"},
		),
		pageRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disclosure_page_fetch_retries_total",
				Help: "Page fetch retries, by chamber",
			},
			[]string{"chamber"},
		),
	}
}

// RunFinished records a terminal run.
func (m *Metrics) RunFinished(status model.IngestStatus, stats model.RunStats) {
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.recordsTotal.WithLabelValues("saved").Add(float64(stats.Saved))
	m.recordsTotal.WithLabelValues("skipped_duplicate").Add(float64(stats.SkippedDuplicate))
	m.recordsTotal.WithLabelValues("error").Add(float64(stats.Errors))
}

// RunFailedAttempt records an attempt that will be retried or abandoned.
func (m *Metrics) RunFailedAttempt(chambers []model.Chamber, err error) {
	class := resilience.ClassifyError(err)
	if resilience.IsCircuitOpen(err) {
		class = "circuit_open"
	} else if errors.Is(err, extract.ErrBlocked) {
		class = "blocked"
	}
	for _, c := range chambers {
		m.failedAttempts.WithLabelValues(string(c), class).Inc()
	}
}

// PageRetry matches the extractor retry hook.
func (m *Metrics) PageRetry(chamber model.Chamber, _ int, _ error) {
	m.pageRetries.WithLabelValues(string(chamber)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
