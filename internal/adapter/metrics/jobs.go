package metrics

import "github.com/prometheus/client_golang/prometheus"

type JobMetrics struct {
	Submitted   prometheus.Counter
	Transitions *prometheus.CounterVec
	Conflicts   prometheus.Counter
	Duration    *prometheus.HistogramVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	m := &JobMetrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Asynchronous jobs accepted.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Job status transitions, by target status.",
		}, []string{"status"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap retries caused by concurrent job updates.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "processing_duration_seconds",
			Help:      "Time from PROCESSING to a terminal status.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"status"}),
	}

	reg.MustRegister(m.Submitted, m.Transitions, m.Conflicts, m.Duration)
	return m
}
