// Package metrics exposes Prometheus counters for the detection pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheRequests counts alert-cache lookups by result (hit/miss).
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caresync_cache_requests_total",
			Help: "Alert cache lookups by status",
		},
		[]string{"status"},
	)

	// OracleRequests counts calls to the reasoning service by outcome.
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caresync_oracle_requests_total",
			Help: "Oracle calls by outcome (ok, transport_error, parse_error)",
		},
		[]string{"outcome"},
	)

	// AlertsEmitted counts alerts that survived reconciliation and filtering.
	AlertsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caresync_alerts_emitted_total",
			Help: "Alerts returned to callers",
		},
	)

	// AlertsSuppressed counts alerts dropped by the clinical post-filter.
	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caresync_alerts_suppressed_total",
			Help: "Alerts dropped by suppression rule",
		},
		[]string{"rule"},
	)

	// DetectionDuration observes whole-batch detection latency.
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caresync_detection_duration_seconds",
			Help:    "End-to-end drift detection duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
