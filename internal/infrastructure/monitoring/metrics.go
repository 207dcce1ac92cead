package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Remote backend metrics
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec
	BreakerState   *prometheus.GaugeVec

	// Job metrics
	JobsSubmitted *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec
	JobLoops      prometheus.Gauge
	PollErrors    *prometheus.CounterVec

	// Session metrics
	SessionsCached   prometheus.Gauge
	SessionUpdates   prometheus.Counter
	SessionWrites    *prometheus.CounterVec
	SessionCoalesced prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates a collector set on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		RemoteCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_remote_calls_total",
				Help: "Total number of calls to the remote backend",
			},
			[]string{"service", "operation", "status"},
		),
		RemoteDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsync_remote_duration_seconds",
				Help:    "Remote backend call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "operation"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatsync_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),

		JobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_jobs_submitted_total",
				Help: "Total number of generation jobs submitted",
			},
			[]string{"kind", "status"},
		),
		JobsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_jobs_finished_total",
				Help: "Total number of jobs reaching a terminal state",
			},
			[]string{"kind", "state"},
		),
		JobLoops: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_job_loops_active",
				Help: "Number of active job polling loops",
			},
		),
		PollErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_job_poll_errors_total",
				Help: "Transient poll failures",
			},
			[]string{"kind"},
		),

		SessionsCached: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_sessions_cached",
				Help: "Number of sessions held in memory",
			},
		),
		SessionUpdates: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_session_updates_total",
				Help: "Total number of in-memory session updates",
			},
		),
		SessionWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_session_writes_total",
				Help: "Debounced session write-throughs to storage",
			},
			[]string{"status"},
		),
		SessionCoalesced: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_session_updates_coalesced_total",
				Help: "Updates folded into an already pending write",
			},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_websocket_connections",
				Help: "Number of active websocket clients",
			},
		),
	}
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Uptime returns how long the collector has existed
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRemoteCall records a call to the remote backend
func (m *Metrics) RecordRemoteCall(service, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(service, operation, status).Inc()
	m.RemoteDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetBreakerState publishes a breaker transition
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordJobSubmitted records a submission attempt
func (m *Metrics) RecordJobSubmitted(kind, status string) {
	if m == nil {
		return
	}
	m.JobsSubmitted.WithLabelValues(kind, status).Inc()
}

// RecordJobFinished records a terminal state
func (m *Metrics) RecordJobFinished(kind, state string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(kind, state).Inc()
}

// IncJobLoops increments the active loop gauge
func (m *Metrics) IncJobLoops() {
	if m == nil {
		return
	}
	m.JobLoops.Inc()
}

// DecJobLoops decrements the active loop gauge
func (m *Metrics) DecJobLoops() {
	if m == nil {
		return
	}
	m.JobLoops.Dec()
}

// RecordPollError records a transient poll failure
func (m *Metrics) RecordPollError(kind string) {
	if m == nil {
		return
	}
	m.PollErrors.WithLabelValues(kind).Inc()
}

// SetSessionsCached sets the cached session gauge
func (m *Metrics) SetSessionsCached(n int) {
	if m == nil {
		return
	}
	m.SessionsCached.Set(float64(n))
}

// RecordSessionUpdate records an in-memory update, noting whether it was
// folded into a write that was already pending
func (m *Metrics) RecordSessionUpdate(coalesced bool) {
	if m == nil {
		return
	}
	m.SessionUpdates.Inc()
	if coalesced {
		m.SessionCoalesced.Inc()
	}
}

// RecordSessionWrite records a write-through outcome
func (m *Metrics) RecordSessionWrite(status string) {
	if m == nil {
		return
	}
	m.SessionWrites.WithLabelValues(status).Inc()
}

// IncWSConnections increments the websocket gauge
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements the websocket gauge
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
