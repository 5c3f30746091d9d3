// Package metrics exports engine activity as Prometheus metrics. A Collector
// is an engine.Observer; the runner adds it to every engine it creates and
// records part and scenario results on it.
package metrics

import (
	"net/http"
	"time"

	"choreo/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "choreo"

// Collector owns a private registry so that tests and several runs in one
// process never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	arrivals     *prometheus.CounterVec
	pending      *prometheus.GaugeVec
	parts        *prometheus.CounterVec
	partDuration *prometheus.HistogramVec
	scenarios    *prometheus.CounterVec
}

// NewCollector creates a collector with metric names under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		arrivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arrivals_total",
			Help:      "Messages that arrived at stand-in endpoints, by outcome",
		}, []string{"endpoint", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_slots",
			Help:      "Expected messages not yet consumed, per endpoint",
		}, []string{"endpoint"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_total",
			Help:      "Specification parts asserted, by result",
		}, []string{"result"}),
		partDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "part_duration_seconds",
			Help:      "Time from the first request of a part to its final assertion",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenarios executed, by result",
		}, []string{"result"}),
	}

	reg.MustRegister(c.arrivals, c.pending, c.parts, c.partDuration, c.scenarios)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveArrival implements engine.Observer.
func (c *Collector) ObserveArrival(endpointID string, outcome engine.Outcome, pending int) {
	c.arrivals.WithLabelValues(endpointID, string(outcome)).Inc()
	if outcome != engine.OutcomeUnknownEndpoint {
		c.pending.WithLabelValues(endpointID).Set(float64(pending))
	}
}

// SetPending publishes the pending count of an endpoint before any arrival.
func (c *Collector) SetPending(endpointID string, pending int) {
	c.pending.WithLabelValues(endpointID).Set(float64(pending))
}

// RecordPart records the result of one part assertion.
func (c *Collector) RecordPart(satisfied bool, duration time.Duration) {
	result := "unsatisfied"
	if satisfied {
		result = "satisfied"
	}
	c.parts.WithLabelValues(result).Inc()
	c.partDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordScenario records a scenario result such as PASSED or FAILED.
func (c *Collector) RecordScenario(result string) {
	c.scenarios.WithLabelValues(result).Inc()
}
