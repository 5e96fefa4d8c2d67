package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthStates are the label values of the per-service health gauge
var healthStates = []string{"healthy", "degraded", "down", "unknown"}

// Metrics holds all Prometheus metrics for the ecosystem gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	FetchRetries  *prometheus.CounterVec

	// Health check metrics
	HealthCheckDuration *prometheus.HistogramVec
	HealthCheckStatus   *prometheus.GaugeVec
	AggregateStatus     *prometheus.GaugeVec

	// Service metrics availability
	MetricsAvailable *prometheus.GaugeVec

	// HTTP surface metrics
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	StreamConnections prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates a new Metrics instance registered with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosystem_fetch_attempts_total",
				Help: "Total number of upstream fetch attempts by outcome",
			},
			[]string{"host", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecosystem_fetch_attempt_duration_seconds",
				Help:    "Upstream fetch attempt latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		),
		FetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosystem_fetch_retries_total",
				Help: "Total number of upstream fetch retries",
			},
			[]string{"host"},
		),

		HealthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecosystem_health_check_duration_seconds",
				Help:    "Service health probe latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		HealthCheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecosystem_health_check_status",
				Help: "Current health state per service (1 for the active state)",
			},
			[]string{"service", "status"},
		),
		AggregateStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecosystem_health_overall_status",
				Help: "Overall ecosystem health (1 for the active state)",
			},
			[]string{"status"},
		),

		MetricsAvailable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecosystem_metrics_available",
				Help: "Whether the service metrics endpoint answered on the last poll",
			},
			[]string{"service"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosystem_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecosystem_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StreamConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecosystem_stream_connections",
				Help: "Number of open health stream websocket connections",
			},
		),

		gatherer: gatherer,
	}
}

// ObserveFetchAttempt records a single upstream attempt
func (m *Metrics) ObserveFetchAttempt(host, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(host, outcome).Inc()
	m.FetchDuration.WithLabelValues(host).Observe(d.Seconds())
}

// IncFetchRetry records a retry against host
func (m *Metrics) IncFetchRetry(host string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(host).Inc()
}

// ObserveHealthCheck records the outcome of a service health probe
func (m *Metrics) ObserveHealthCheck(service, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HealthCheckDuration.WithLabelValues(service).Observe(d.Seconds())
	for _, s := range healthStates {
		v := 0.0
		if s == status {
			v = 1
		}
		m.HealthCheckStatus.WithLabelValues(service, s).Set(v)
	}
}

// SetAggregateStatus records the overall ecosystem status
func (m *Metrics) SetAggregateStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range healthStates {
		v := 0.0
		if s == status {
			v = 1
		}
		m.AggregateStatus.WithLabelValues(s).Set(v)
	}
}

// SetMetricsAvailable records whether a service's metrics endpoint answered
func (m *Metrics) SetMetricsAvailable(service string, available bool) {
	if m == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	m.MetricsAvailable.WithLabelValues(service).Set(v)
}

// ObserveRequest records a served HTTP request
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StreamOpened records a new health stream connection
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

// StreamClosed records a closed health stream connection
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
