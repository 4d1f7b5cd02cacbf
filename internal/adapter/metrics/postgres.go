package metrics

import "github.com/prometheus/client_golang/prometheus"

// PostgresMetrics is fed by the pgx query tracer.
type PostgresMetrics struct {
	QueryDuration *prometheus.HistogramVec
	Errors        *prometheus.CounterVec
	Swept         prometheus.Counter
}

func NewPostgresMetrics(reg prometheus.Registerer) *PostgresMetrics {
	m := &PostgresMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency, by statement verb.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"query"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Failed database queries, by statement verb.",
		}, []string{"query"}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "expired_entries_swept_total",
			Help:      "Expired key-value rows removed by the sweeper.",
		}),
	}

	reg.MustRegister(m.QueryDuration, m.Errors, m.Swept)
	return m
}
