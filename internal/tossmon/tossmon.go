// Package tossmon exposes tossd's Prometheus metrics: toss lifecycle
// counters and chain-watcher scan latency, grounded on dcrlnd's own
// monitoring subsystem (referenced, via monitoring.UseLogger, in its
// log.go) generalized from an lnd-specific metric set to toss lifecycle events.
package tossmon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge/histogram tossd exports.
type Metrics struct {
	TossesCreated   prometheus.Counter
	TossesCompleted prometheus.Counter
	TossesCancelled prometheus.Counter
	ParticipantsJoined prometheus.Counter
	PayoutFailures  prometheus.Counter

	WatcherScanDuration prometheus.Histogram
	WatcherScanErrors   prometheus.Counter

	CorrelationUnresolved prometheus.Counter
}

// New constructs and registers every tossd metric against a dedicated
// registry (not the global default), so multiple Engines/tests in one
// process never collide on metric registration.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TossesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "tosses_created_total",
			Help:      "Total number of tosses created.",
		}),
		TossesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "tosses_completed_total",
			Help:      "Total number of tosses that completed with a declared winner.",
		}),
		TossesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "tosses_cancelled_total",
			Help:      "Total number of tosses force-closed or otherwise cancelled.",
		}),
		ParticipantsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "participants_joined_total",
			Help:      "Total number of successful AddParticipant calls.",
		}),
		PayoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "payout_failures_total",
			Help:      "Total number of individual payout/refund transfers that failed.",
		}),
		WatcherScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tossd",
			Name:      "watcher_scan_duration_seconds",
			Help:      "Duration of one ChainWatcher poll tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		WatcherScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "watcher_scan_errors_total",
			Help:      "Total number of per-wallet scan errors.",
		}),
		CorrelationUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tossd",
			Name:      "correlation_unresolved_total",
			Help:      "Total number of watcher-observed transfers that could not be correlated to a toss join.",
		}),
	}

	reg.MustRegister(
		m.TossesCreated,
		m.TossesCompleted,
		m.TossesCancelled,
		m.ParticipantsJoined,
		m.PayoutFailures,
		m.WatcherScanDuration,
		m.WatcherScanErrors,
		m.CorrelationUnresolved,
	)

	return m, reg
}

// Handler returns the http.Handler that serves reg's metrics in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
