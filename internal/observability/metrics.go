// Package observability holds process-wide logging and metrics helpers.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var summaryCommittedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "insights_service",
	Subsystem: "persistence",
	Name:      "last_summary_committed_timestamp_seconds",
	Help:      "Unix timestamp of the most recent summary commit.",
})

func init() {
	prometheus.MustRegister(summaryCommittedGauge)
}

// RecordSummaryCommitted updates the commit watermark gauge.
func RecordSummaryCommitted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	summaryCommittedGauge.Set(float64(ts.Unix()))
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
