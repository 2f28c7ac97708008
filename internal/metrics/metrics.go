// Package metrics exposes coordinator counters. All methods are nil-safe
// so the app layer can run without a collector wired in (tests do).
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	activeSessions      prometheus.Gauge
	sessionsCreated     prometheus.Counter
	sessionsClosed      prometheus.Counter
	signalsIn           *prometheus.CounterVec
	signalsOut          *prometheus.CounterVec
	controlIn           *prometheus.CounterVec
	controlOut          *prometheus.CounterVec
	negotiationFailures prometheus.Counter
	envelopesDropped    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meet", Name: "active_sessions",
			Help: "Peer sessions currently held by the registry.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet", Name: "sessions_created_total",
			Help: "Peer sessions created since start.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet", Name: "sessions_closed_total",
			Help: "Peer sessions torn down since start.",
		}),
		signalsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meet", Name: "signals_in_total",
			Help: "Relay envelopes received, by kind.",
		}, []string{"kind"}),
		signalsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meet", Name: "signals_out_total",
			Help: "Relay envelopes sent, by kind.",
		}, []string{"kind"}),
		controlIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meet", Name: "control_in_total",
			Help: "Control-channel messages received, by type.",
		}, []string{"type"}),
		controlOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meet", Name: "control_out_total",
			Help: "Control-channel messages sent, by type.",
		}, []string{"type"}),
		negotiationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet", Name: "negotiation_failures_total",
			Help: "Descriptions or candidates the transport rejected.",
		}),
		envelopesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet", Name: "envelopes_dropped_total",
			Help: "Malformed or unroutable relay envelopes dropped.",
		}),
	}
	reg.MustRegister(
		m.activeSessions, m.sessionsCreated, m.sessionsClosed,
		m.signalsIn, m.signalsOut, m.controlIn, m.controlOut,
		m.negotiationFailures, m.envelopesDropped,
	)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
	m.activeSessions.Dec()
}

func (m *Metrics) SignalIn(kind string) {
	if m == nil {
		return
	}
	m.signalsIn.WithLabelValues(kind).Inc()
}

func (m *Metrics) SignalOut(kind string) {
	if m == nil {
		return
	}
	m.signalsOut.WithLabelValues(kind).Inc()
}

func (m *Metrics) ControlIn(typ string) {
	if m == nil {
		return
	}
	m.controlIn.WithLabelValues(typ).Inc()
}

func (m *Metrics) ControlOut(typ string) {
	if m == nil {
		return
	}
	m.controlOut.WithLabelValues(typ).Inc()
}

func (m *Metrics) NegotiationFailure() {
	if m == nil {
		return
	}
	m.negotiationFailures.Inc()
}

func (m *Metrics) EnvelopeDropped() {
	if m == nil {
		return
	}
	m.envelopesDropped.Inc()
}
