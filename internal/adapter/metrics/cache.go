package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for result cache performance.
type CacheMetrics struct {
	Hits      *prometheus.CounterVec
	Misses    *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	Evictions prometheus.Counter
	Size      prometheus.Gauge
}

// NewCacheMetrics creates and registers cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "hits_total",
			Help:      "Total number of result cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "misses_total",
			Help:      "Total number of result cache misses, by layer.",
		}, []string{"layer"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "errors_total",
			Help:      "Store failures absorbed by the result cache, by operation.",
		}, []string{"operation"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "memory_evictions_total",
			Help:      "Expired entries removed from the in-memory layer.",
		}),
		Size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "memory_entries",
			Help:      "Entries currently held by the in-memory layer.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Errors, m.Evictions, m.Size)
	return m
}
