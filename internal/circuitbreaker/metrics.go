package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports per-dependency circuit breaker activity to Prometheus
type Metrics struct {
	requests     *prometheus.CounterVec
	successes    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	phaseChanges *prometheus.CounterVec
	currentPhase *prometheus.GaugeVec
	callDuration *prometheus.HistogramVec
}

// NewMetrics registers the breaker metric set on the default registerer
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the breaker metric set on reg. Tests pass a
// private registry to avoid duplicate registration panics.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of calls requested through the breaker",
			},
			[]string{"dependency"},
		),
		successes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_successes_total",
				Help:      "Total number of successful calls",
			},
			[]string{"dependency"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_failures_total",
				Help:      "Total number of failed calls",
			},
			[]string{"dependency"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_rejections_total",
				Help:      "Total number of calls rejected without invoking the primary",
			},
			[]string{"dependency"},
		),
		phaseChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_phase_changes_total",
				Help:      "Total number of phase transitions",
			},
			[]string{"dependency", "from", "to"},
		),
		currentPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_phase",
				Help:      "Current phase of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"dependency"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_call_duration_seconds",
				Help:      "Call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"dependency", "status"},
		),
	}
}

// RecordRequest records a call attempt
func (m *Metrics) RecordRequest(dependency string) {
	m.requests.WithLabelValues(dependency).Inc()
}

// RecordSuccess records a successful call
func (m *Metrics) RecordSuccess(dependency string) {
	m.successes.WithLabelValues(dependency).Inc()
}

// RecordFailure records a failed call
func (m *Metrics) RecordFailure(dependency string) {
	m.failures.WithLabelValues(dependency).Inc()
}

// RecordRejection records a call rejected by admission control
func (m *Metrics) RecordRejection(dependency string) {
	m.rejections.WithLabelValues(dependency).Inc()
}

// RecordPhaseChange records a phase transition
func (m *Metrics) RecordPhaseChange(dependency string, from, to Phase) {
	m.phaseChanges.WithLabelValues(dependency, from.String(), to.String()).Inc()
	m.currentPhase.WithLabelValues(dependency).Set(float64(to))
}

// RecordDuration records a call duration with its status label
func (m *Metrics) RecordDuration(dependency, status string, seconds float64) {
	m.callDuration.WithLabelValues(dependency, status).Observe(seconds)
}
