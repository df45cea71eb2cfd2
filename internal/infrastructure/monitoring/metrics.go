package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Protocol metrics
	ProtocolCalls    *prometheus.CounterVec
	ProtocolDuration *prometheus.HistogramVec
	ProtocolErrors   *prometheus.CounterVec
	EventsEmitted    *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec

	// Connection metrics
	Connections prometheus.Gauge

	// Browser state
	TargetsActive     prometheus.Gauge
	ContextsActive    prometheus.Gauge
	BridgePending     prometheus.Gauge
	RequestsSuspended prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON status endpoint.
type Snapshot struct {
	Calls       int64 `json:"calls"`
	Errors      int64 `json:"errors"`
	Events      int64 `json:"events"`
	Dropped     int64 `json:"dropped"`
	Connections int64 `json:"connections"`
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ProtocolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_protocol_calls_total",
				Help: "Total number of protocol method calls",
			},
			[]string{"method", "outcome"},
		),
		ProtocolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_protocol_call_duration_seconds",
				Help:    "Protocol call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		ProtocolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_protocol_errors_total",
				Help: "Total number of protocol error replies",
			},
			[]string{"kind"},
		),
		EventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_protocol_events_total",
				Help: "Total number of events sent to clients",
			},
			[]string{"method"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_protocol_events_dropped_total",
				Help: "Events dropped because they failed validation",
			},
			[]string{"method"},
		),

		Connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_connections",
				Help: "Number of open control connections",
			},
		),

		TargetsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_targets",
				Help: "Number of live targets",
			},
		),
		ContextsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_browser_contexts",
				Help: "Number of live browser contexts",
			},
		),
		BridgePending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_bridge_pending_calls",
				Help: "Content bridge calls awaiting a reply",
			},
		),
		RequestsSuspended: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remote_requests_suspended",
				Help: "Network requests held by interception",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "remote_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCall records a protocol call. kind is empty on success.
func (m *Metrics) RecordCall(method, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if kind != "" {
		outcome = "error"
		m.ProtocolErrors.WithLabelValues(kind).Inc()
	}
	m.ProtocolCalls.WithLabelValues(method, outcome).Inc()
	m.ProtocolDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Calls++
	if kind != "" {
		m.snapshot.Errors++
	}
	m.mu.Unlock()
}

// RecordEvent records an event delivered to a client
func (m *Metrics) RecordEvent(method string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.Events++
	m.mu.Unlock()
}

// RecordDroppedEvent records an event that failed validation
func (m *Metrics) RecordDroppedEvent(method string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.Dropped++
	m.mu.Unlock()
}

// IncConnections increments open connections
func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.Connections.Inc()
	m.mu.Lock()
	m.snapshot.Connections++
	m.mu.Unlock()
}

// DecConnections decrements open connections
func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.Connections.Dec()
	m.mu.Lock()
	m.snapshot.Connections--
	m.mu.Unlock()
}

// SetTargets sets the number of live targets
func (m *Metrics) SetTargets(count int) {
	if m == nil {
		return
	}
	m.TargetsActive.Set(float64(count))
}

// SetContexts sets the number of live browser contexts
func (m *Metrics) SetContexts(count int) {
	if m == nil {
		return
	}
	m.ContextsActive.Set(float64(count))
}

// AddBridgePending adjusts the pending bridge call gauge
func (m *Metrics) AddBridgePending(delta int) {
	if m == nil {
		return
	}
	m.BridgePending.Add(float64(delta))
}

// AddSuspended adjusts the suspended request gauge
func (m *Metrics) AddSuspended(delta int) {
	if m == nil {
		return
	}
	m.RequestsSuspended.Add(float64(delta))
}

// GetSnapshot returns current counter values
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns time since the collector was created
func (m *Metrics) UptimeSeconds() float64 {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime).Seconds()
}
