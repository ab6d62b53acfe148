// Package metrics registers the process-wide Prometheus counters and
// histograms shared by the Master and Slave entrypoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the core components increment or
// observe. It is built once per process and threaded down to the
// components that need it, never read from a package-level global.
type Registry struct {
	PacketsReceived    prometheus.Counter
	RequestsSent       prometheus.Counter
	RepliesMatched     prometheus.Counter
	Timeouts           prometheus.Counter
	RoundEmpty         prometheus.Counter
	StateTransitions   *prometheus.CounterVec
	OffsetSeconds      prometheus.Histogram
	DelaySeconds       prometheus.Histogram
}

// New registers and returns a fresh Registry against the default
// Prometheus registerer.
func New() *Registry {
	return &Registry{
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clocksync_packets_received_total",
			Help: "Datagrams received on the sync socket.",
		}),
		RequestsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clocksync_requests_sent_total",
			Help: "Sync requests sent by the requester.",
		}),
		RepliesMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clocksync_replies_matched_total",
			Help: "Replies matched to a pending request by sequence.",
		}),
		Timeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clocksync_timeouts_total",
			Help: "Exchanges that received no reply before their deadline.",
		}),
		RoundEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clocksync_round_empty_total",
			Help: "Sync rounds in which every exchange failed.",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clocksync_state_transitions_total",
			Help: "Sync controller FSM transitions, labeled by from/to state.",
		}, []string{"from", "to"}),
		OffsetSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "clocksync_offset_seconds",
			Help:    "Distribution of selected per-round clock offsets.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
		DelaySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "clocksync_delay_seconds",
			Help:    "Distribution of selected per-round network delays.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
	}
}
