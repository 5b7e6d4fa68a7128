// Package observability exposes Prometheus metrics, a health/metrics HTTP
// server, and OpenTelemetry tracing for the investigation pipeline.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_investigations_total",
			Help: "Total number of investigations by terminal status",
		},
		[]string{"status"},
	)

	investigationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robin_investigation_duration_seconds",
			Help:    "Investigation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_tool_calls_total",
			Help: "Total number of capability invocations",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robin_tool_call_duration_seconds",
			Help:    "Capability invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_events_emitted_total",
			Help: "Total number of correlated events by kind",
		},
		[]string{"kind"},
	)

	subagentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_subagent_runs_total",
			Help: "Total number of sub-agent worker runs",
		},
		[]string{"agent", "status"},
	)

	activeInvestigations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robin_active_investigations",
			Help: "Number of currently registered investigations",
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers all metrics with the default registry. Safe to call
// more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			investigationsTotal,
			investigationDuration,
			toolCallsTotal,
			toolCallDuration,
			eventsTotal,
			subagentRunsTotal,
			activeInvestigations,
		)
	})
}

// RecordInvestigation records one finished investigation.
func RecordInvestigation(status string, duration time.Duration) {
	investigationsTotal.WithLabelValues(status).Inc()
	investigationDuration.Observe(duration.Seconds())
}

// RecordToolCall records one capability invocation.
func RecordToolCall(tool, status string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordEvent records one correlated event.
func RecordEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// RecordSubagent records one worker outcome.
func RecordSubagent(agent string, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	subagentRunsTotal.WithLabelValues(agent, status).Inc()
}

// SetActiveInvestigations reports the current registry size.
func SetActiveInvestigations(n int) {
	activeInvestigations.Set(float64(n))
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
