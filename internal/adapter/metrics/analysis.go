package metrics

import "github.com/prometheus/client_golang/prometheus"

// AnalysisMetrics covers the request orchestrators.
type AnalysisMetrics struct {
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Sentiments    *prometheus.CounterVec
	Confidence    prometheus.Histogram
	PIIDetections *prometheus.CounterVec
}

func NewAnalysisMetrics(reg prometheus.Registerer) *AnalysisMetrics {
	m := &AnalysisMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analysis requests, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end synchronous analysis latency.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"cache"}),
		Sentiments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "sentiments_total",
			Help:      "Analysed texts, by resulting sentiment.",
		}, []string{"sentiment"}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "confidence",
			Help:      "Confidence reported for fresh analyses.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		PIIDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "pii_entities_total",
			Help:      "Detected PII entities, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.Requests, m.Duration, m.Sentiments, m.Confidence, m.PIIDetections)
	return m
}
