package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsTotal       *prometheus.CounterVec
	natsSaturated     *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpInFlight      prometheus.Gauge
}

// NewMetrics registers all collectors, plus Go runtime and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_operations_total",
				Help: "Auth operations by transport, operation and outcome.",
			},
			[]string{"transport", "operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_operation_duration_seconds",
				Help:    "Auth operation latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport", "operation"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_events_total",
				Help: "Domain events by subject and result (published, failed, dropped).",
			},
			[]string{"subject", "result"},
		),
		natsSaturated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_nats_saturated_total",
				Help: "NATS requests that arrived while every handler slot of their subject was busy.",
			},
			[]string{"subject"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "status"},
		),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operationsTotal,
		m.operationDuration,
		m.eventsTotal,
		m.natsSaturated,
		m.httpRequestsTotal,
		m.httpInFlight,
	)
	return m
}

// ObserveOperation records one handled request. outcome is "ok" or an error type.
func (m *Metrics) ObserveOperation(transport, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(transport, operation, outcome).Inc()
	m.operationDuration.WithLabelValues(transport, operation).Observe(elapsed.Seconds())
}

// EventPublished counts a delivered event
func (m *Metrics) EventPublished(subject string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(subject, "published").Inc()
}

// EventFailed counts an event the publisher rejected
func (m *Metrics) EventFailed(subject string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(subject, "failed").Inc()
}

// EventDropped counts an event discarded because the queue was full
func (m *Metrics) EventDropped(subject string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(subject, "dropped").Inc()
}

// NATSSaturated counts a request that had to wait for a handler slot
func (m *Metrics) NATSSaturated(subject string) {
	if m == nil {
		return
	}
	m.natsSaturated.WithLabelValues(subject).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument wraps an HTTP handler counting requests by status
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
