package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	importRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_import_requests_total",
			Help: "Total number of import requests.",
		},
	)
	importFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_import_failures_total",
			Help: "Total number of failed import requests.",
		},
	)
	importRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_import_rows_total",
			Help: "Total number of rows inserted by imports.",
		},
	)
	importDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irisdm_import_duration_ms",
			Help:    "End-to-end import duration in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	ddlOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irisdm_ddl_operations_total",
			Help: "Total number of executed DDL operations by kind.",
		},
		[]string{"kind"},
	)
	previewRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_preview_requests_total",
			Help: "Total number of upload preview requests.",
		},
	)
	previewDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irisdm_preview_duration_ms",
			Help:    "Upload preview duration in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)
	translateRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_translate_requests_total",
			Help: "Total number of natural-language translation requests.",
		},
	)
	translateFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_translate_failures_total",
			Help: "Total number of failed natural-language translation requests.",
		},
	)
	translateLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irisdm_translate_latency_ms",
			Help:    "Model round-trip latency for translation requests in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	queryRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irisdm_query_requests_total",
			Help: "Total number of SQL query requests.",
		},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irisdm_query_latency_ms",
			Help:    "SQL query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		importRequestsTotal,
		importFailuresTotal,
		importRowsTotal,
		importDurationMs,
		ddlOperationsTotal,
		previewRequestsTotal,
		previewDurationMs,
		translateRequestsTotal,
		translateFailuresTotal,
		translateLatencyMs,
		queryRequestsTotal,
		queryLatencyMs,
	)
}

func ObserveImport(rows int64, elapsed time.Duration, failed bool) {
	importRequestsTotal.Inc()
	if failed {
		importFailuresTotal.Inc()
		return
	}
	if rows > 0 {
		importRowsTotal.Add(float64(rows))
	}
	importDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveDDLOperation(kind string) {
	ddlOperationsTotal.WithLabelValues(kind).Inc()
}

func ObservePreview(elapsed time.Duration) {
	previewRequestsTotal.Inc()
	previewDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveTranslate(elapsed time.Duration, failed bool) {
	translateRequestsTotal.Inc()
	if failed {
		translateFailuresTotal.Inc()
		return
	}
	translateLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQuery(elapsed time.Duration) {
	queryRequestsTotal.Inc()
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}
