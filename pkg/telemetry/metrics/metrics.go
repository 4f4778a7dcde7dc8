// Package metrics exposes Prometheus instrumentation for the proxy.
//
// Metrics:
//   - callisto_requests_total: request count by endpoint and status
//   - callisto_request_duration_seconds: request duration histogram
//   - callisto_tokens_total: tokens processed by model and type
//   - callisto_stream_chunks_total: streamed chunks delivered to clients
//   - callisto_upstream_retries_total: upstream retry attempts
//   - callisto_breaker_state: current circuit breaker state
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/callisto/pkg/upstream"
)

const namespace = "callisto"

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	streamChunks    prometheus.Counter
	upstreamRetries prometheus.Counter
	breakerState    prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxy requests processed",
			},
			[]string{"endpoint", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxy requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total number of tokens reported by the upstream",
			},
			[]string{"model", "type"},
		),

		streamChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_chunks_total",
				Help:      "Total number of streamed chunks delivered to clients",
			},
		),

		upstreamRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Total number of upstream retry attempts",
			},
		),

		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.tokensTotal,
		m.streamChunks,
		m.upstreamRetries,
		m.breakerState,
	)

	return m
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(endpoint, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordTokens records token counts reported by the upstream.
func (m *Metrics) RecordTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordStreamChunk counts one streamed chunk delivered to a client.
func (m *Metrics) RecordStreamChunk() {
	m.streamChunks.Inc()
}

// RecordRetry counts one upstream retry attempt.
func (m *Metrics) RecordRetry() {
	m.upstreamRetries.Inc()
}

// ObserveBreaker wires the breaker's state transitions into the gauge.
// Call before the breaker is shared.
func (m *Metrics) ObserveBreaker(b *upstream.Breaker) {
	m.setBreakerState(b.State())
	b.OnStateChange(m.setBreakerState)
}

func (m *Metrics) setBreakerState(s upstream.BreakerState) {
	switch s {
	case upstream.BreakerOpen:
		m.breakerState.Set(1)
	case upstream.BreakerHalfOpen:
		m.breakerState.Set(2)
	default:
		m.breakerState.Set(0)
	}
}
