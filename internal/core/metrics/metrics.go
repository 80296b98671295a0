// Package metrics exposes Prometheus collectors for the evaluation service.
//
// Collectors live on a private registry rather than the global default so
// tests and multiple service instances do not collide. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthsignals"

// Failure reasons used as the "reason" label of evaluation failures.
const (
	ReasonInvalidMetrics = "invalid_metrics"
	ReasonRuleSource     = "rule_source"
	ReasonTooManyRules   = "too_many_rules"
	ReasonCanceled       = "canceled"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	evaluationsTotal     *prometheus.CounterVec
	failuresTotal        *prometheus.CounterVec
	matchesTotal         prometheus.Counter
	indeterminateSignals prometheus.Counter
	evaluationDuration   *prometheus.HistogramVec
	rulesPerEvaluation   prometheus.Histogram
	auditFailuresTotal   prometheus.Counter
}

// New creates and registers the service collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Completed rule set evaluations",
		}, []string{"source"}),

		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Evaluation requests rejected before matching",
		}, []string{"reason"}),

		matchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Rules matched across all evaluations",
		}),

		indeterminateSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indeterminate_signals_total",
			Help:      "Signals that evaluated to null due to unusable rule data",
		}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent loading and matching a rule set",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"source"}),

		rulesPerEvaluation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rules_per_evaluation",
			Help:      "Number of rules evaluated per request",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		auditFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Evaluations whose audit record could not be written",
		}),
	}

	m.registry.MustRegister(
		m.evaluationsTotal,
		m.failuresTotal,
		m.matchesTotal,
		m.indeterminateSignals,
		m.evaluationDuration,
		m.rulesPerEvaluation,
		m.auditFailuresTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveEvaluation records one completed evaluation.
func (m *Metrics) ObserveEvaluation(source string, rules, matched, indeterminate int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(source).Inc()
	m.matchesTotal.Add(float64(matched))
	m.indeterminateSignals.Add(float64(indeterminate))
	m.evaluationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.rulesPerEvaluation.Observe(float64(rules))
}

// ObserveFailure records a rejected evaluation.
func (m *Metrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(reason).Inc()
}

// AuditFailure records an audit write that failed.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailuresTotal.Inc()
}
