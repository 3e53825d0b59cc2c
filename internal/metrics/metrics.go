// Package metrics registers the engine's Prometheus instruments: tick
// duration, opportunities found/emitted, and mempool ingest counters,
// per SPEC_FULL.md §2's Metrics ambient-stack section.
//
// Grounded on differ/differ.go's metrics usage
// (d.metrics.diffDuration.WithLabelValues(), prometheus.NewTimer) and
// chains/ethereum/client.go's Dial(..., prometheusRegistry, ...)
// plumbing: one Metrics struct built from a prometheus.Registerer and
// threaded through constructors rather than registered globally.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every instrument the engine exposes.
type Metrics struct {
	TickDuration        prometheus.Histogram
	OpportunitiesFound  prometheus.Counter
	OpportunitiesSent   prometheus.Counter
	MempoolSwapsSeen    prometheus.Counter
	MempoolSwapsDropped prometheus.Counter
	PathSearchDuration  prometheus.Histogram
	ExecutionAttempts   *prometheus.CounterVec
}

// New registers and returns the engine's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbbot",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one engine tick: revalidate and simulate pending swaps, search, score.",
			Buckets:   prometheus.DefBuckets,
		}),
		OpportunitiesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbbot",
			Name:      "opportunities_found_total",
			Help:      "Profitable arbitrage opportunities discovered across all ticks.",
		}),
		OpportunitiesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbbot",
			Name:      "opportunities_sent_total",
			Help:      "Opportunities handed to the executor for submission.",
		}),
		MempoolSwapsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbbot",
			Name:      "mempool_swaps_seen_total",
			Help:      "Pending swaps successfully decoded from the mempool stream.",
		}),
		MempoolSwapsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbbot",
			Name:      "mempool_swaps_dropped_total",
			Help:      "Pending transaction hashes dropped due to resolver or buffer capacity.",
		}),
		PathSearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbbot",
			Name:      "pathsearch_duration_seconds",
			Help:      "Duration of a single bounded-depth cycle search.",
			Buckets:   prometheus.DefBuckets,
		}),
		ExecutionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbbot",
			Name:      "execution_attempts_total",
			Help:      "Submission attempts by outcome (sent, confirmed, reverted, error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.OpportunitiesFound,
		m.OpportunitiesSent,
		m.MempoolSwapsSeen,
		m.MempoolSwapsDropped,
		m.PathSearchDuration,
		m.ExecutionAttempts,
	)
	return m
}
