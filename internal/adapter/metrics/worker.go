package metrics

import "github.com/prometheus/client_golang/prometheus"

type WorkerMetrics struct {
	Handled *prometheus.CounterVec
	Panics  prometheus.Counter
	Busy    prometheus.Gauge
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	m := &WorkerMetrics{
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_handled_total",
			Help:      "Dequeued jobs handed to the processor, by outcome.",
		}, []string{"outcome"}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "panics_total",
			Help:      "Panics recovered while processing a job.",
		}),
		Busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "busy",
			Help:      "Consumers currently processing a job.",
		}),
	}

	reg.MustRegister(m.Handled, m.Panics, m.Busy)
	return m
}
