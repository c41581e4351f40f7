// Package metrics provides Prometheus instrumentation for the TechTie match
// engine. It exposes a gauge for connections, counters for deck activity
// and match outcomes, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "techtie_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// DecisionsTotal counts accepted deck decisions, labeled by decision:
	// "pass", "like", or "super_like".
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_decisions_total",
		Help: "Total number of deck decisions",
	}, []string{"decision"})

	// FilterAppliedTotal counts filter applications, labeled by the number
	// of active filters.
	FilterAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_filter_applied_total",
		Help: "Total number of filter applications",
	}, []string{"active"})

	// ExhaustedTotal counts decks running out, labeled by reason:
	// "no_candidates" or "reviewed".
	ExhaustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_deck_exhausted_total",
		Help: "Total number of decks that ran out of candidates",
	}, []string{"reason"})

	// MutualMatchesTotal counts reciprocated likes.
	MutualMatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "techtie_mutual_matches_total",
		Help: "Total number of mutual likes",
	})

	// AchievementsUnlockedTotal counts new achievement levels, labeled by
	// kind and level.
	AchievementsUnlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_achievements_unlocked_total",
		Help: "Total number of achievement levels unlocked",
	}, []string{"kind", "level"})

	// ChallengesCompletedTotal counts credited challenge submissions.
	ChallengesCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "techtie_challenges_completed_total",
		Help: "Total number of completed challenges",
	})

	// ChatMessagesTotal counts chat sends, labeled by outcome
	// (delivered, invalid, blocked, no_conversation, error).
	ChatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_chat_messages_total",
		Help: "Total number of chat messages by outcome",
	}, []string{"result"})

	// MessageLatency records inbound message processing latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "techtie_message_latency_seconds",
		Help:    "Message processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// LoginLatency records end-to-end login handling time, including the
	// simulated round-trip.
	LoginLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "techtie_login_latency_seconds",
		Help:    "Login handling latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 1.5, 2, 5},
	})

	// RateLimitedTotal counts throttled requests, labeled by rule.
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "techtie_rate_limited_total",
		Help: "Total number of rate limited requests",
	}, []string{"rule"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		DecisionsTotal,
		FilterAppliedTotal,
		ExhaustedTotal,
		MutualMatchesTotal,
		AchievementsUnlockedTotal,
		ChallengesCompletedTotal,
		ChatMessagesTotal,
		MessageLatency,
		LoginLatency,
		RateLimitedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
