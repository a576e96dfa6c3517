// Package metrics exposes the relay's Prometheus instrumentation: socket
// counts, frame throughput, admission outcomes, and the /metrics HTTP
// handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the relay registers.
type Metrics struct {
	SocketsConnected *prometheus.GaugeVec
	FramesForwarded  *prometheus.CounterVec
	AdmissionTotal   *prometheus.CounterVec
	AdmissionLatency *prometheus.HistogramVec
	NonceReplays     prometheus.Counter
	EventsActive     prometheus.Gauge
}

// New creates and registers the relay's metrics.
func New() *Metrics {
	return &Metrics{
		SocketsConnected: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_sockets_connected",
				Help: "Currently connected WebSocket sockets by role.",
			},
			[]string{"role"},
		),
		FramesForwarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_forwarded_total",
				Help: "Frames forwarded between PC and mobile sockets.",
			},
			[]string{"direction"}, // cmd, evt
		),
		AdmissionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_admission_total",
				Help: "Signed admission requests by operation and outcome.",
			},
			[]string{"op", "code"},
		),
		AdmissionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_admission_duration_seconds",
				Help:    "Latency of signed admission requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		NonceReplays: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_nonce_replays_total",
				Help: "Requests rejected for reusing an already-claimed nonce.",
			},
		),
		EventsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_events_active",
				Help: "Number of event namespaces created so far.",
			},
		),
	}
}

// Handler returns the HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SocketConnected implements relay.Metrics.
func (m *Metrics) SocketConnected(role string) {
	m.SocketsConnected.WithLabelValues(role).Inc()
}

// SocketDisconnected implements relay.Metrics.
func (m *Metrics) SocketDisconnected(role string) {
	m.SocketsConnected.WithLabelValues(role).Dec()
}

// FrameForwarded implements relay.Metrics.
func (m *Metrics) FrameForwarded(direction string) {
	m.FramesForwarded.WithLabelValues(direction).Inc()
}

// NonceReplay implements relay.Metrics.
func (m *Metrics) NonceReplay() {
	m.NonceReplays.Inc()
}

// EventCreated implements relay.Metrics.
func (m *Metrics) EventCreated() {
	m.EventsActive.Inc()
}

// Admission records the outcome and latency of one signed admission
// request, called from internal/httpapi around each handler.
func (m *Metrics) Admission(op, code string, duration float64) {
	m.AdmissionTotal.WithLabelValues(op, code).Inc()
	m.AdmissionLatency.WithLabelValues(op).Observe(duration)
}
