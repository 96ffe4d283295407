package service

import (
	"strconv"

	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/alcounit/jserrorcollector/pkg/proxy"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jserrors"

type Metrics struct {
	drained       *prometheus.CounterVec
	drainRequests *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	bidiConns     prometheus.Gauge
	bidiMessages  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		drained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drained_total",
			Help:      "JavaScript errors read from browser sessions.",
		}, []string{"category"}),
		drainRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_requests_total",
			Help:      "Drain requests by result.",
		}, []string{"result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "New session requests forwarded to the hub.",
		}, []string{"browser", "injected"}),
		bidiConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bidi_connections",
			Help:      "Open websocket connections relayed to the hub.",
		}),
		bidiMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bidi_messages_total",
			Help:      "Websocket messages relayed, by sender.",
		}, []string{"from"}),
	}

	reg.MustRegister(m.drained, m.drainRequests, m.sessions, m.bidiConns, m.bidiMessages)
	return m
}

func (m *Metrics) recordDrain(result string, errs jserror.Errors) {
	m.drainRequests.WithLabelValues(result).Inc()
	for _, e := range errs {
		m.drained.WithLabelValues(e.Category()).Inc()
	}
}

func (m *Metrics) recordSession(browser string, injected bool) {
	m.sessions.WithLabelValues(browser, strconv.FormatBool(injected)).Inc()
}

func (m *Metrics) recordMessage(from proxy.Direction) {
	m.bidiMessages.WithLabelValues(string(from)).Inc()
}
