package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several servers can live in one process.
type Metrics struct {
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestSize      *prometheus.HistogramVec
	ResponseSize     *prometheus.HistogramVec
	InFlightRequests prometheus.Gauge
	HealthStatus     prometheus.Gauge
	DatabaseUp       prometheus.Gauge
	DroppedEvents    prometheus.Counter

	// Ops gauges, fed by the prometheus reporter
	OpsUptime     prometheus.Gauge
	OpsGoroutines prometheus.Gauge
	OpsHeapAlloc  prometheus.Gauge
	OpsHeapSys    prometheus.Gauge
	OpsGCCount    prometheus.Gauge

	registry *prometheus.Registry
	handler  http.Handler
}

func NewMetrics() *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		RequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint", "status_code"},
		),
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Number of requests currently being served",
		}),
		HealthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_health_status",
			Help: "Application health status (1 = listening, 0 = not listening)",
		}),
		DatabaseUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_database_up",
			Help: "Result of the last health check database probe (1 = connected)",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "app_monitor_dropped_events_total",
			Help: "Monitor events dropped because the reporter queue was full",
		}),
		OpsUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_ops_uptime_seconds",
			Help: "Process uptime at the last ops sample",
		}),
		OpsGoroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_ops_goroutines",
			Help: "Goroutines at the last ops sample",
		}),
		OpsHeapAlloc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_ops_heap_alloc_bytes",
			Help: "Heap bytes allocated at the last ops sample",
		}),
		OpsHeapSys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_ops_heap_sys_bytes",
			Help: "Heap bytes obtained from the OS at the last ops sample",
		}),
		OpsGCCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "app_ops_gc_cycles",
			Help: "Completed GC cycles at the last ops sample",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.RequestSize,
		m.ResponseSize,
		m.InFlightRequests,
		m.HealthStatus,
		m.DatabaseUp,
		m.DroppedEvents,
		m.OpsUptime,
		m.OpsGoroutines,
		m.OpsHeapAlloc,
		m.OpsHeapSys,
		m.OpsGCCount,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return m
}

func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	status := strconv.Itoa(statusCode)
	m.RequestCount.WithLabelValues(method, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.ResponseSize.WithLabelValues(method, endpoint, status).Observe(float64(responseSize))
}

func (m *Metrics) SetHealthStatus(healthy bool) {
	m.HealthStatus.Set(boolToFloat(healthy))
}

func (m *Metrics) SetDatabaseUp(up bool) {
	m.DatabaseUp.Set(boolToFloat(up))
}

// RecordOps copies an ops sample into the ops gauges.
func (m *Metrics) RecordOps(s OpsSample) {
	m.OpsUptime.Set(s.Uptime.Seconds())
	m.OpsGoroutines.Set(float64(s.Goroutines))
	m.OpsHeapAlloc.Set(float64(s.HeapAlloc))
	m.OpsHeapSys.Set(float64(s.HeapSys))
	m.OpsGCCount.Set(float64(s.GCCycles))
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
