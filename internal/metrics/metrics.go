// Package metrics: счётчики движка для Prometheus. nil *Metrics допустим и
// ничего не пишет.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	framesIn       *prometheus.CounterVec
	framesOut      *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	reconnects     prometheus.Counter
	outboxDepth    prometheus.Gauge
	outboxFailed   prometheus.Counter
	connection     prometheus.Gauge
	updatesDropped prometheus.Counter
}

// New создаёт реестр с метриками движка и рантайма Go.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_in_total",
			Help: "Inbound frames by type.",
		}, []string{"type"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_out_total",
			Help: "Frames written to the socket by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_dropped_total",
			Help: "Ephemeral frames dropped while the socket was not open.",
		}, []string{"type"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_decode_errors_total",
			Help: "Inbound frames that failed to parse.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_reconnects_total",
			Help: "Reconnect attempts.",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_outbox_depth",
			Help: "Entries waiting in the outbound queue.",
		}),
		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_outbox_failed_total",
			Help: "Messages the outbound queue gave up on.",
		}),
		connection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_connected",
			Help: "1 while the socket is open and authenticated.",
		}),
		updatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_updates_dropped_total",
			Help: "Updates dropped because a subscriber was too slow.",
		}),
	}
	m.registry.MustRegister(
		m.framesIn, m.framesOut, m.framesDropped, m.decodeErrors, m.reconnects,
		m.outboxDepth, m.outboxFailed, m.connection, m.updatesDropped,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдаёт реестр в текстовом формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameIn(t string) {
	if m != nil {
		m.framesIn.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) FrameOut(t string) {
	if m != nil {
		m.framesOut.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) FrameDropped(t string) {
	if m != nil {
		m.framesDropped.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) OutboxDepth(n int) {
	if m != nil {
		m.outboxDepth.Set(float64(n))
	}
}

func (m *Metrics) OutboxFailed() {
	if m != nil {
		m.outboxFailed.Inc()
	}
}

func (m *Metrics) Connected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connection.Set(1)
	} else {
		m.connection.Set(0)
	}
}

func (m *Metrics) UpdateDropped() {
	if m != nil {
		m.updatesDropped.Inc()
	}
}
