package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the call service
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal    *prometheus.CounterVec
	callsActive   prometheus.Gauge
	callsDuration *prometheus.HistogramVec

	// Signaling Metrics
	signalsRelayedTotal *prometheus.CounterVec
	signalDropsTotal    *prometheus.CounterVec

	// Recording Metrics
	recordingsActive    prometheus.Gauge
	recordingBytesTotal prometheus.Counter
	recordingErrsTotal  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of open signaling WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages by direction",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls initiated by type",
				ConstLabels: labels,
			},
			[]string{"call_type"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of live call sessions",
				ConstLabels: labels,
			},
		),
		callsDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of ended calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
			},
			[]string{"call_type"},
		),
		signalsRelayedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_relayed_total",
				Help:        "Total number of signaling messages relayed by type",
				ConstLabels: labels,
			},
			[]string{"signal_type"},
		),
		signalDropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signal_delivery_failures_total",
				Help:        "Total number of signaling messages that could not be delivered",
				ConstLabels: labels,
			},
			[]string{"signal_type"},
		),
		recordingsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "recordings_active",
				Help:        "Number of recordings currently in progress",
				ConstLabels: labels,
			},
		),
		recordingBytesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "recording_bytes_total",
				Help:        "Total number of recording bytes accepted",
				ConstLabels: labels,
			},
		),
		recordingErrsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "recording_chunk_errors_total",
				Help:        "Total number of failed recording chunk writes",
				ConstLabels: labels,
			},
		),
	}
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocketConnected records a new signaling connection
func (m *Metrics) WebSocketConnected() {
	m.websocketConnections.Inc()
}

// WebSocketDisconnected records a closed signaling connection
func (m *Metrics) WebSocketDisconnected() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records an inbound or outbound WebSocket message
func (m *Metrics) RecordWebSocketMessage(direction string) {
	m.websocketMessagesTotal.WithLabelValues(direction).Inc()
}

// CallStarted records a newly initiated call
func (m *Metrics) CallStarted(callType string) {
	m.callsTotal.WithLabelValues(callType).Inc()
	m.callsActive.Inc()
}

// CallEnded records a terminated call with its duration
func (m *Metrics) CallEnded(callType string, duration time.Duration) {
	m.callsActive.Dec()
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// SignalRelayed records one relayed signaling message
func (m *Metrics) SignalRelayed(signalType string) {
	m.signalsRelayedTotal.WithLabelValues(signalType).Inc()
}

// SignalDeliveryFailed records a best-effort delivery failure
func (m *Metrics) SignalDeliveryFailed(signalType string) {
	m.signalDropsTotal.WithLabelValues(signalType).Inc()
}

// RecordingStarted records a started recording
func (m *Metrics) RecordingStarted() {
	m.recordingsActive.Inc()
}

// RecordingStopped records a completed recording
func (m *Metrics) RecordingStopped() {
	m.recordingsActive.Dec()
}

// RecordingChunk records accepted recording bytes
func (m *Metrics) RecordingChunk(size int) {
	m.recordingBytesTotal.Add(float64(size))
}

// RecordingChunkFailed records a failed chunk persist
func (m *Metrics) RecordingChunkFailed() {
	m.recordingErrsTotal.Inc()
}
