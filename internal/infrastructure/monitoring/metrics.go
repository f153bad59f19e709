package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsStarted *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	LaunchFailures  *prometheus.CounterVec
	ResumeOutcomes  *prometheus.CounterVec
	AgentIDCaptured prometheus.Counter

	// Pipeline metrics
	BytesRead       *prometheus.CounterVec
	RecordsFramed   *prometheus.CounterVec
	LinesSuppressed *prometheus.CounterVec

	// Bridge metrics
	RecordsDelivered *prometheus.CounterVec
	RecordsDropped   *prometheus.CounterVec

	// Teardown metrics
	TeardownDuration prometheus.Histogram
	TeardownFailures *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a new metrics collector backed by its own registry, so
// several supervisors (or tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentio_sessions_active",
				Help: "Number of sessions with a live child process",
			},
		),
		SessionsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_sessions_started_total",
				Help: "Sessions started, by mode",
			},
			[]string{"mode"},
		),
		SessionsEnded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_sessions_ended_total",
				Help: "Sessions torn down, by reason",
			},
			[]string{"mode", "reason"},
		),
		LaunchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_launch_failures_total",
				Help: "Child processes that could not be spawned",
			},
			[]string{"mode"},
		),
		ResumeOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_resume_outcomes_total",
				Help: "Outcome of resume requests",
			},
			[]string{"outcome"},
		),
		AgentIDCaptured: f.NewCounter(
			prometheus.CounterOpts{
				Name: "agentio_agent_session_ids_captured_total",
				Help: "Agent session identifiers captured",
			},
		),

		BytesRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_pump_bytes_read_total",
				Help: "Bytes read from child descriptors",
			},
			[]string{"mode", "stream"},
		),
		RecordsFramed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_records_framed_total",
				Help: "Output records produced by the framer, by kind",
			},
			[]string{"mode", "kind"},
		),
		LinesSuppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_conditioner_suppressed_total",
				Help: "Lines or sequences dropped by the conditioner, by rule",
			},
			[]string{"rule"},
		),

		RecordsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_records_delivered_total",
				Help: "Records handed to the client sink",
			},
			[]string{"kind"},
		),
		RecordsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_records_dropped_total",
				Help: "Records dropped before reaching the client",
			},
			[]string{"reason"},
		),

		TeardownDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentio_teardown_duration_seconds",
				Help:    "Time spent tearing a session down",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 4, 8},
			},
		),
		TeardownFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_teardown_step_failures_total",
				Help: "Teardown steps that reported an error",
			},
			[]string{"step"},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentio_websocket_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentio_websocket_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agentio_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
