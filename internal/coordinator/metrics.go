package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AstrixelHQ/gigways/internal/observability"
)

var (
	conflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "coordinator",
		Name:      "version_conflicts_total",
		Help:      "Number of summary commits rejected because the stored version moved.",
	})

	terminalFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "coordinator",
		Name:      "terminal_failures_total",
		Help:      "Number of summary updates abandoned, grouped by reason.",
	}, []string{"reason"})

	attemptsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "insights_service",
		Subsystem: "coordinator",
		Name:      "attempts_per_commit",
		Help:      "Attempts needed before a summary update committed.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
)

func init() {
	prometheus.MustRegister(conflictCounter, terminalFailureCounter, attemptsHistogram)
}

func recordConflict() {
	conflictCounter.Inc()
}

func recordTerminalFailure(reason string) {
	terminalFailureCounter.WithLabelValues(reason).Inc()
}

func recordAttempts(n int) {
	attemptsHistogram.Observe(float64(n))
}

func recordCommit(ts time.Time) {
	observability.RecordSummaryCommitted(ts)
}
