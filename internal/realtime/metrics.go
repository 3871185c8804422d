package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the realtime-plane instruments. All methods are nil-safe so
// tests can pass a zero value without wiring a registry.
type Metrics struct {
	connections *prometheus.GaugeVec
	messagesIn  *prometheus.CounterVec
	messagesOut *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	callsFailed prometheus.Counter
}

// NewMetrics registers the realtime metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chunkmeet",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections by endpoint.",
		}, []string{"endpoint"}),
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkmeet",
			Subsystem: "ws",
			Name:      "messages_in_total",
			Help:      "Client frames decoded, by endpoint and message type.",
		}, []string{"endpoint", "type"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkmeet",
			Subsystem: "ws",
			Name:      "messages_out_total",
			Help:      "Server frames enqueued, by endpoint.",
		}, []string{"endpoint"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkmeet",
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Frames dropped due to backpressure or closed peers.",
		}, []string{"endpoint"}),
		callsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkmeet",
			Subsystem: "call",
			Name:      "failed_total",
			Help:      "Call setups that ended in call-failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.messagesIn, m.messagesOut, m.dropped, m.callsFailed)
	}
	return m
}

func (m *Metrics) ConnOpened(endpoint string) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) ConnClosed(endpoint string) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.WithLabelValues(endpoint).Dec()
}

func (m *Metrics) MessageIn(endpoint, msgType string) {
	if m == nil || m.messagesIn == nil {
		return
	}
	m.messagesIn.WithLabelValues(endpoint, msgType).Inc()
}

func (m *Metrics) MessageOut(endpoint string) {
	if m == nil || m.messagesOut == nil {
		return
	}
	m.messagesOut.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Dropped(endpoint string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) CallFailed() {
	if m == nil || m.callsFailed == nil {
		return
	}
	m.callsFailed.Inc()
}
