// Package metrics exposes Prometheus instrumentation for replay sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message verdicts.
const (
	VerdictApplied       = "applied"
	VerdictWrongOrigin   = "wrong_origin"
	VerdictWrongSource   = "wrong_source"
	VerdictUnrecognized  = "unrecognized"
	VerdictNoFieldsKnown = "no_usable_fields"
)

var (
	switchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replaydesk",
		Name:      "edition_switch_outcomes_total",
		Help:      "Edition switches by terminal state.",
	}, []string{"state"})

	switchRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replaydesk",
		Name:      "edition_switch_rejected_total",
		Help:      "Edition switch requests rejected before starting, by reason.",
	}, []string{"reason"})

	navigationMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replaydesk",
		Name:      "navigation_messages_total",
		Help:      "Messages relayed from embedded replay viewers, by verdict.",
	}, []string{"verdict"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "replaydesk",
		Name:      "edition_resolve_duration_seconds",
		Help:      "Latency of edition resolution calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replaydesk",
		Name:      "active_sessions",
		Help:      "Replay sessions currently held in memory.",
	})
)

func SwitchOutcome(state string) { switchOutcomes.WithLabelValues(state).Inc() }

func SwitchRejected(reason string) { switchRejected.WithLabelValues(reason).Inc() }

func NavigationMessage(verdict string) { navigationMessages.WithLabelValues(verdict).Inc() }

// ResolveObserved records one resolution call; result is "found", "absent" or "error".
func ResolveObserved(result string, d time.Duration) {
	resolveDuration.WithLabelValues(result).Observe(d.Seconds())
}

func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
