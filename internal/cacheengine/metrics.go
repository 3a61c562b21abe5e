package cacheengine

import "github.com/prometheus/client_golang/prometheus"

// Metrics is purely additive instrumentation: nothing in the engine's
// correctness depends on these being read. Wired the way every repo in the
// retrieval pack (rclone, moby, please) wires prometheus/client_golang -
// package-scoped collectors registered once, updated inline at the call
// sites that already do the work being measured.
type Metrics struct {
	entries      prometheus.Gauge
	cachedBytes  prometheus.Gauge
	hitsTotal    prometheus.Counter
	missesTotal  prometheus.Counter
	prefetchesTotal prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outrungo", Subsystem: "cache", Name: "entries",
			Help: "Number of cache entries currently held in memory.",
		}),
		cachedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outrungo", Subsystem: "cache", Name: "bytes",
			Help: "Total bytes of cached file content currently on disk.",
		}),
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outrungo", Subsystem: "cache", Name: "hits_total",
			Help: "Cache entry lookups served from the in-memory entry map.",
		}),
		missesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outrungo", Subsystem: "cache", Name: "misses_total",
			Help: "Cache entry lookups that required a remote fetch.",
		}),
		prefetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outrungo", Subsystem: "cache", Name: "prefetch_entries_total",
			Help: "Prefetch bundle entries whose contents were stored as a blob.",
		}),
	}
}

// Collectors returns every metric this Engine owns, for a caller to
// register with a prometheus.Registerer.
func (e *Engine) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		e.metrics.entries, e.metrics.cachedBytes, e.metrics.hitsTotal,
		e.metrics.missesTotal, e.metrics.prefetchesTotal,
	}
}
