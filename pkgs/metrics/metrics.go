// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stage_relay"

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Stage submissions by outcome category",
		},
		[]string{"outcome"},
	)

	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time from request to broadcast (or confirmation when awaited)",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	GasLimit = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_limit",
			Help:      "Buffered gas limit of broadcast addStage transactions",
			Buckets:   prometheus.ExponentialBuckets(50000, 2, 8),
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "submit_queue_depth",
			Help:      "Submissions waiting for the signing account",
		},
	)

	HistoryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_requests_total",
			Help:      "Stage history reconstructions by outcome",
		},
		[]string{"outcome"},
	)

	HistorySkippedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_skipped_events_total",
			Help:      "Events left out of a history because their reads failed",
		},
	)

	NonceRewinds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_rewinds_total",
			Help:      "Times the local nonce sequence moved back after the node lost a transaction",
		},
	)

	MediaStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_store_total",
			Help:      "Media blobs sent to the content store by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		Submissions,
		SubmissionDuration,
		GasLimit,
		QueueDepth,
		HistoryRequests,
		HistorySkippedEvents,
		NonceRewinds,
		MediaStored,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
