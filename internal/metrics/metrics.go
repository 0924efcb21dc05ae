// Package metrics provides Prometheus instrumentation for the relay bot:
// gauges for queue/pair counts, counters for relay and moderation
// throughput, and histograms for match and relay latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users waiting for a partner.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonrelay_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ActivePairs tracks the current number of active chat pairs.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonrelay_active_pairs",
		Help: "Current number of active chat pairs",
	})

	// MessagesRelayedTotal counts relayed messages, labeled by outcome:
	// "delivered", "blocked" (content filter), "rate_limited", or "failed"
	// (transport error).
	MessagesRelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonrelay_messages_relayed_total",
		Help: "Total number of messages processed by the relay",
	}, []string{"outcome"})

	// RelayLatency records the time from receiving a message to successfully
	// relaying it to the partner.
	RelayLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonrelay_relay_latency_seconds",
		Help:    "Time to relay a message to the partner",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// MatchDuration records the time a user spends queued before matching.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonrelay_match_duration_seconds",
		Help:    "Time from entering the queue to being matched",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120},
	})

	// BansTotal counts bans issued, labeled by reason.
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonrelay_bans_total",
		Help: "Total number of bans issued",
	}, []string{"reason", "auto"})

	// ReportsTotal counts reports filed against users.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonrelay_reports_total",
		Help: "Total number of reports filed",
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActivePairs,
		MessagesRelayedTotal,
		RelayLatency,
		MatchDuration,
		BansTotal,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
