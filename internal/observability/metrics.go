package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// chlorine data service.
type Metrics struct {
	ResolveRequests  *prometheus.CounterVec // labels: stage={mapping,exact,same_city,loosened,none}
	ResolveDuration  prometheus.Histogram
	ReadingsAcquired prometheus.Counter
	ReadingsRejected *prometheus.CounterVec // labels: reason={range,geographic,precedence}
	ManualEntries    prometheus.Counter

	// Document acquisition metrics.
	SearchRequests     *prometheus.CounterVec   // labels: outcome={success,error,empty}
	ExtractionAttempts *prometheus.CounterVec   // labels: method, outcome={hit,miss,error}
	ExtractionDuration *prometheus.HistogramVec // labels: method
	LLMEnabled         prometheus.Gauge

	// Contamination audit metrics.
	AuditScans     prometheus.Counter
	AuditFindings  *prometheus.CounterVec // labels: severity={critical,warning,info}
	AuditCleanups  prometheus.Counter
	FindingsQueued prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ResolveRequests,
		m.ResolveDuration,
		m.ReadingsAcquired,
		m.ReadingsRejected,
		m.ManualEntries,
		m.SearchRequests,
		m.ExtractionAttempts,
		m.ExtractionDuration,
		m.LLMEnabled,
		m.AuditScans,
		m.AuditFindings,
		m.AuditCleanups,
		m.FindingsQueued,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "resolve_requests_total",
			Help:      "Utility resolution requests by the stage that satisfied them.",
		}, []string{"stage"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chlorine",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of a complete postal-code resolution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ReadingsAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "readings_acquired_total",
			Help:      "Total chlorine readings persisted from acquisition runs.",
		}),
		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "readings_rejected_total",
			Help:      "Candidate readings rejected before persistence, by reason.",
		}, []string{"reason"}),
		ManualEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "manual_entries_total",
			Help:      "Total readings recorded through manual entry.",
		}),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "search_requests_total",
			Help:      "Disclosure document search requests by outcome.",
		}, []string{"outcome"}),
		ExtractionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "extraction_attempts_total",
			Help:      "Value extraction attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		ExtractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chlorine",
			Name:      "extraction_duration_seconds",
			Help:      "Document extraction duration in seconds by method.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		LLMEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chlorine",
			Name:      "llm_extraction_enabled",
			Help:      "1 when LLM-assisted extraction is enabled, 0 otherwise.",
		}),
		AuditScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "audit_scans_total",
			Help:      "Total contamination audit scans.",
		}),
		AuditFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "audit_findings_total",
			Help:      "Contamination findings by severity.",
		}, []string{"severity"}),
		AuditCleanups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "audit_cleanups_total",
			Help:      "Readings removed by contamination cleanup.",
		}),
		FindingsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chlorine",
			Name:      "audit_findings_queued_total",
			Help:      "Findings published to the downstream findings topic.",
		}),
	}
}
