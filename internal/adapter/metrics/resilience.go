package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
)

// ResilienceMetrics records external call attempts and circuit breaker state.
type ResilienceMetrics struct {
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	BreakerChanges  *prometheus.CounterVec
}

var _ resilience.Observer = (*ResilienceMetrics)(nil)

func NewResilienceMetrics(reg prometheus.Registerer) *ResilienceMetrics {
	m := &ResilienceMetrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "attempts_total",
			Help:      "External call attempts, by target and outcome.",
		}, []string{"target", "outcome"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of external call attempts that reached the target.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"target"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"target"}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Circuit breaker transitions, by target and new state.",
		}, []string{"target", "state"}),
	}

	reg.MustRegister(m.Attempts, m.AttemptDuration, m.BreakerState, m.BreakerChanges)
	return m
}

func (m *ResilienceMetrics) ObserveAttempt(target, outcome string, duration time.Duration) {
	m.Attempts.WithLabelValues(target, outcome).Inc()
	if outcome != resilience.AttemptCircuitOpen {
		m.AttemptDuration.WithLabelValues(target).Observe(duration.Seconds())
	}
}

func (m *ResilienceMetrics) ObserveStateChange(target string, _, to resilience.State) {
	m.BreakerChanges.WithLabelValues(target, to.String()).Inc()
	m.BreakerState.WithLabelValues(target).Set(StateValue(to.String()))
}

// StateValue maps a breaker state name to the gauge encoding shared with the Redis hook.
func StateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open", "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
