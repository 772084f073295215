package ledger

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

var (
	enqueuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ledger",
		Name:      "pending_updates_enqueued_total",
		Help:      "Number of failed summary updates recorded for replay, by change kind.",
	}, []string{"kind"})

	enqueueFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ledger",
		Name:      "enqueue_failures_total",
		Help:      "Number of failed summary updates that could not be recorded.",
	})

	replayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ledger",
		Name:      "replays_total",
		Help:      "Number of replay calls grouped by result.",
	}, []string{"result"})

	replayOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ledger",
		Name:      "replay_outcomes_total",
		Help:      "Number of replayed rows grouped by resulting status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(enqueuedCounter, enqueueFailureCounter, replayCounter, replayOutcomeCounter)
}

func recordEnqueued(kind domain.ChangeKind) {
	enqueuedCounter.WithLabelValues(string(kind)).Inc()
}

func recordEnqueueFailure() {
	enqueueFailureCounter.Inc()
}

func recordReplay(result string) {
	replayCounter.WithLabelValues(result).Inc()
}

func recordReplayOutcome(status domain.PendingStatus) {
	replayOutcomeCounter.WithLabelValues(string(status)).Inc()
}
