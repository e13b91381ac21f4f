// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "applyflow"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	authResolutions *prometheus.CounterVec

	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
}

// New creates a Metrics with a private registry. withRuntime adds the Go
// and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),

		authResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "resolutions_total",
			Help:      "Credential resolutions by channel and outcome.",
		}, []string{"channel", "outcome"}),

		storeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by backend, operation and result.",
		}, []string{"backend", "operation", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"backend", "operation"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.authResolutions,
		m.storeOperations,
		m.storeDuration,
	)
	if withRuntime {
		m.Registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records a completed request. path should be a route
// template so label cardinality stays bounded.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordAuthResolution counts a credential resolution attempt.
func (m *Metrics) RecordAuthResolution(channel, outcome string) {
	if channel == "" {
		channel = "none"
	}
	m.authResolutions.WithLabelValues(channel, outcome).Inc()
}

// RecordStoreOperation records one store call.
func (m *Metrics) RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOperations.WithLabelValues(backend, operation, result).Inc()
	m.storeDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}
