package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type settlementMetrics struct {
	transitions *prometheus.CounterVec
	conflicts   prometheus.Counter
	outboxLag   prometheus.Gauge
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *settlementMetrics
)

// Gateway returns the lazily-initialised metrics registry used to record HTTP
// gateway activity.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agroledger",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agroledger",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "agroledger",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agroledger",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
// Reasons should be stable strings such as "rate_limit" so dashboards stay
// consistent.
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// Settlement returns the singleton registry for order-lifecycle metrics.
func Settlement() *settlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agroledger",
				Subsystem: "orders",
				Name:      "transitions_total",
				Help:      "Order state transitions segmented by resulting state.",
			}, []string{"state"}),
			conflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "agroledger",
				Subsystem: "state",
				Name:      "commit_conflicts_total",
				Help:      "Transactions rejected because a read record changed before commit.",
			}),
			outboxLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "agroledger",
				Subsystem: "outbox",
				Name:      "pending_events",
				Help:      "Events appended to the outbox but not yet delivered.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.transitions,
			settlementRegistry.conflicts,
			settlementRegistry.outboxLag,
		)
	})
	return settlementRegistry
}

// RecordTransition counts an order arriving in state.
func (m *settlementMetrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.transitions.WithLabelValues(state).Inc()
}

// RecordConflict counts a rejected optimistic commit.
func (m *settlementMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// SetOutboxPending reports the current undelivered outbox depth.
func (m *settlementMetrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxLag.Set(float64(n))
}
