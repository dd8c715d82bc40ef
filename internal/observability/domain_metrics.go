package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_translations_total",
			Help: "Total number of natural-language translations by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	translationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querymind_translation_latency_ms",
			Help:    "LLM translation latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		},
		[]string{"provider"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_guard_rejections_total",
			Help: "Total number of statements rejected by the read-only guard.",
		},
		[]string{"keyword"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_query_executions_total",
			Help: "Total number of executed statements by dialect and outcome.",
		},
		[]string{"dialect", "outcome"},
	)
	queryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querymind_query_latency_ms",
			Help:    "Target database query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"dialect"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querymind_query_rows_returned",
			Help:    "Rows returned per executed statement.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_exports_total",
			Help: "Total number of result exports by format and destination.",
		},
		[]string{"format", "destination"},
	)
	schemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_schema_cache_total",
			Help: "Schema metadata cache lookups by result.",
		},
		[]string{"result"},
	)
	activeConnection = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querymind_active_connection",
			Help: "1 when a target database connection is active, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationLatencyMs,
		guardRejectionsTotal,
		queryExecutionsTotal,
		queryLatencyMs,
		queryRowsReturned,
		exportsTotal,
		schemaCacheTotal,
		activeConnection,
	)
}

func ObserveTranslation(provider, outcome string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(provider, outcome).Inc()
	translationLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func IncrementGuardRejection(keyword string) {
	if keyword == "" {
		keyword = "none"
	}
	guardRejectionsTotal.WithLabelValues(keyword).Inc()
}

func ObserveQuery(dialect, outcome string, rows int, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(dialect, outcome).Inc()
	queryLatencyMs.WithLabelValues(dialect).Observe(float64(elapsed.Milliseconds()))
	if rows >= 0 {
		queryRowsReturned.Observe(float64(rows))
	}
}

func IncrementExport(format, destination string) {
	exportsTotal.WithLabelValues(format, destination).Inc()
}

func ObserveSchemaCache(hit bool) {
	if hit {
		schemaCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	schemaCacheTotal.WithLabelValues("miss").Inc()
}

func SetActiveConnection(active bool) {
	if active {
		activeConnection.Set(1)
		return
	}
	activeConnection.Set(0)
}
