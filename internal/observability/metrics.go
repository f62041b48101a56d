package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outbound_tracker"

// Tracking outcomes
const (
	OutcomeTracked       = "tracked"
	OutcomeCaptureFailed = "capture_failed"
	OutcomePublishFailed = "publish_failed"
	OutcomeUpstreamError = "upstream_error"
)

// Publish and provisioning results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultExists  = "exists"
)

// Metrics holds the Prometheus collectors for the tracking pipeline.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - outbound_tracker_requests_total: intercepted requests by outcome
//   - outbound_tracker_publish_total: queue publishes by result
//   - outbound_tracker_publish_duration_seconds: queue publish latency
//   - outbound_tracker_provisioning_total: queue provisioning attempts by result
//   - outbound_tracker_dispatch_dropped_total: records dropped by a full dispatch buffer
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	publishTotal      *prometheus.CounterVec
	publishDuration   prometheus.Histogram
	provisioningTotal *prometheus.CounterVec
	dispatchDropped   prometheus.Counter
}

// NewMetrics creates and registers the collectors. If registry is nil a new
// one is created.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of intercepted outbound requests by outcome",
			},
			[]string{"outcome"},
		),
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Total number of log records sent to the queue by result",
			},
			[]string{"result"},
		),
		publishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Duration of queue sends in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		provisioningTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_total",
				Help:      "Total number of queue provisioning attempts by result",
			},
			[]string{"result"},
		),
		dispatchDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_dropped_total",
				Help:      "Total number of log records dropped because the dispatch buffer was full",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.publishTotal,
		m.publishDuration,
		m.provisioningTotal,
		m.dispatchDropped,
	)

	return m
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts one intercepted request
func (m *Metrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordPublish counts one queue send and observes its latency
func (m *Metrics) RecordPublish(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(result).Inc()
	m.publishDuration.Observe(duration.Seconds())
}

// RecordProvisioning counts one provisioning attempt
func (m *Metrics) RecordProvisioning(result string) {
	if m == nil {
		return
	}
	m.provisioningTotal.WithLabelValues(result).Inc()
}

// RecordDispatchDropped counts one record dropped by the dispatcher
func (m *Metrics) RecordDispatchDropped() {
	if m == nil {
		return
	}
	m.dispatchDropped.Inc()
}
