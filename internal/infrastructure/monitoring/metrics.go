package monitoring

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/sandbox"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Interception metrics
	OperationsIntercepted *prometheus.CounterVec
	OperationsEmitted     *prometheus.CounterVec

	// Script metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	OutboundRequests  prometheus.Counter

	// Pool metrics
	PoolSize      prometheus.Gauge
	PoolAvailable prometheus.Gauge
	PoolInUse     prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	latency  latencyWindow
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON health view.
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	Executions      int64   `json:"executions"`
	FailedScripts   int64   `json:"failed_scripts"`
	Intercepted     int64   `json:"intercepted"`
	Emitted         int64   `json:"emitted"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	AvgRequestMilli float64 `json:"avg_request_ms"`

	Latency LatencySummary `json:"execution_latency"`

	totalDuration float64
}

// NewMetrics creates a collector registered on its own registry, together
// with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envtrace_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envtrace_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envtrace_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envtrace_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Interception metrics
		OperationsIntercepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envtrace_operations_intercepted_total",
				Help: "Fundamental operations seen by interception wrappers",
			},
			[]string{"operation"},
		),
		OperationsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envtrace_operations_emitted_total",
				Help: "Intercepted operations that passed the log policy",
			},
			[]string{"operation"},
		),

		// Script metrics
		Executions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envtrace_script_executions_total",
				Help: "Script executions by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		ExecutionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envtrace_script_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		OutboundRequests: f.NewCounter(
			prometheus.CounterOpts{
				Name: "envtrace_script_outbound_requests_total",
				Help: "XMLHttpRequest and beacon requests issued by scripts",
			},
		),

		// Pool metrics
		PoolSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "envtrace_pool_size",
			Help: "Number of runtimes in the sandbox pool",
		}),
		PoolAvailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "envtrace_pool_available",
			Help: "Idle runtimes in the sandbox pool",
		}),
		PoolInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "envtrace_pool_in_use",
			Help: "Runtimes currently executing scripts",
		}),

		// WebSocket metrics
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "envtrace_ws_connections",
				Help: "Number of active audit stream connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envtrace_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "envtrace_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format,
// gzip-compressed for clients that accept it.
func (m *Metrics) Handler() http.Handler {
	return gzhttp.GzipHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:           m.registry,
		DisableCompression: true,
	}))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation implements envproxy.Recorder.
func (m *Metrics) RecordOperation(op string, emitted bool) {
	m.OperationsIntercepted.WithLabelValues(op).Inc()
	if emitted {
		m.OperationsEmitted.WithLabelValues(op).Inc()
	}

	m.mu.Lock()
	m.snapshot.Intercepted++
	if emitted {
		m.snapshot.Emitted++
	}
	m.mu.Unlock()
}

// RecordExecution records one Execute or Generate call. result may be nil
// when the call never reached a runtime.
func (m *Metrics) RecordExecution(kind string, result *sandbox.Result, err error) {
	status := executionStatus(err)
	m.Executions.WithLabelValues(kind, status).Inc()
	if result != nil {
		m.ExecutionDuration.WithLabelValues(kind).Observe(result.Duration.Seconds())
		m.OutboundRequests.Add(float64(len(result.Requests)))
	}

	m.mu.Lock()
	m.snapshot.Executions++
	if err != nil {
		m.snapshot.FailedScripts++
	}
	if result != nil {
		m.latency.add(float64(result.Duration.Microseconds()) / 1000)
	}
	m.mu.Unlock()
}

func executionStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return "timeout"
	case errors.Is(err, sandbox.ErrTimeout), errors.Is(err, sandbox.ErrPoolClosed):
		return "unavailable"
	case errors.Is(err, sandbox.ErrNoGenerator):
		return "no_generator"
	default:
		return "error"
	}
}

// ObservePool copies pool occupancy into the gauges.
func (m *Metrics) ObservePool(stats sandbox.PoolStats) {
	m.PoolSize.Set(float64(stats.Size))
	m.PoolAvailable.Set(float64(stats.Available))
	m.PoolInUse.Set(float64(stats.InUse))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	if s.TotalRequests > 0 {
		s.AvgRequestMilli = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.Latency = m.latency.summary()
	return s
}
