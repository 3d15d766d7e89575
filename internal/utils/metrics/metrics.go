package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Checkout metrics
	CheckoutsTotal      *prometheus.CounterVec // method, outcome
	StockConflictsTotal prometheus.Counter

	// Payment metrics
	GatewayRequestsTotal  *prometheus.CounterVec // provider, operation, outcome
	GatewayCallbacksTotal *prometheus.CounterVec // provider, outcome
	GatewayCallDuration   *prometheus.HistogramVec
}

// New creates a new Metrics instance with all metrics registered on reg.
// A nil registerer falls back to the default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "lapstore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		CheckoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "orders_total",
				Help:      "Total number of checkout attempts",
			},
			[]string{"payment_method", "outcome"},
		),
		StockConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "stock_conflicts_total",
				Help:      "Number of inventory commits rejected for insufficient stock",
			},
		),

		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "gateway_requests_total",
				Help:      "Total number of outbound payment gateway calls",
			},
			[]string{"provider", "operation", "outcome"},
		),
		GatewayCallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "gateway_callbacks_total",
				Help:      "Total number of inbound payment gateway callbacks",
			},
			[]string{"provider", "outcome"},
		),
		GatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "gateway_call_duration_seconds",
				Help:      "Outbound gateway call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"provider", "operation"},
		),
	}
}

// ObserveHTTPRequest records a completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveGatewayCall records a completed outbound gateway call.
func (m *Metrics) ObserveGatewayCall(provider, operation, outcome string, duration time.Duration) {
	m.GatewayRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.GatewayCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}
