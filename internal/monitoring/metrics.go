package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waitQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_wait_queue_length",
			Help: "Current number of users waiting to be matched",
		},
	)

	confirmationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_confirmation_queue_length",
			Help: "Current number of matched users awaiting mutual confirmation",
		},
	)

	matchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_matches_total",
			Help: "Total pairs formed",
		},
	)

	matchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_match_outcomes_total",
			Help: "Resolved matches by outcome",
		},
		[]string{"outcome"},
	)

	cancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_cancellations_total",
			Help: "Total cancel requests that removed a waiting user",
		},
	)

	timeToMatch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_time_to_match_seconds",
			Help:    "Time a user spent in the wait queue before being matched",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)

func SetQueueLengths(waiting, confirming int) {
	waitQueueLength.Set(float64(waiting))
	confirmationQueueLength.Set(float64(confirming))
}

func RecordMatch(waited time.Duration) {
	matchesTotal.Inc()
	timeToMatch.Observe(waited.Seconds())
}

func RecordOutcome(outcome string) {
	matchOutcomes.WithLabelValues(outcome).Inc()
}

func RecordCancellation() {
	cancellationsTotal.Inc()
}
