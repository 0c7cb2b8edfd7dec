// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal             *prometheus.CounterVec
	itemsCreatedTotal        prometheus.Counter
	itemsSkippedTotal        prometheus.Counter
	fetchDurationSeconds     prometheus.Histogram
	activeFetches            prometheus.Gauge
	schedulerTicksTotal      *prometheus.CounterVec
	verificationJobsTotal    *prometheus.CounterVec
	verificationPollsTotal   prometheus.Counter
	verificationRetriesTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedd_fetches_total",
				Help: "Total number of fetch worker invocations, labeled by status.",
			},
			[]string{"status"},
		)

		itemsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedd_items_created_total",
				Help: "Total number of new items persisted after deduplication.",
			},
		)

		itemsSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedd_items_skipped_total",
				Help: "Total number of entries absorbed as duplicates.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedd_fetch_duration_seconds",
				Help:    "Histogram of per-source fetch durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedd_active_fetches",
				Help: "Number of fetch workers currently processing a source.",
			},
		)

		schedulerTicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedd_scheduler_ticks_total",
				Help: "Total number of scheduler ticks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		verificationJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedd_verification_jobs_total",
				Help: "Total number of verification jobs reaching a terminal state.",
			},
			[]string{"state"},
		)

		verificationPollsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedd_verification_polls_total",
				Help: "Total number of status polls against the verification service.",
			},
		)

		verificationRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedd_verification_retries_total",
				Help: "Total number of transient-error retries during verification.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch worker outcome.
func ObserveFetch(status string, created, skipped int, duration time.Duration) {
	fetchesTotal.WithLabelValues(status).Inc()
	if created > 0 {
		itemsCreatedTotal.Add(float64(created))
	}
	if skipped > 0 {
		itemsSkippedTotal.Add(float64(skipped))
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveTick records one scheduler tick outcome.
func ObserveTick(outcome string) {
	schedulerTicksTotal.WithLabelValues(outcome).Inc()
}

// ObserveJobTerminal records a verification job reaching a terminal state.
func ObserveJobTerminal(state string) {
	verificationJobsTotal.WithLabelValues(state).Inc()
}

// ObservePoll increments the verification poll counter.
func ObservePoll() {
	verificationPollsTotal.Inc()
}

// ObserveVerificationRetry increments the transient-retry counter.
func ObserveVerificationRetry() {
	verificationRetriesTotal.Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	activeFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	activeFetches.Dec()
}
