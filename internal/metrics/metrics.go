// Package metrics exposes the relay's Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	inbound          *prometheus.CounterVec
	sends            *prometheus.CounterVec
	topicsCreated    prometheus.Counter
	topicsReconciled prometheus.Counter
	eventsDequeued   prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnirelay_inbound_events_total",
			Help: "Inbound events accepted by the router, by channel and origin.",
		}, []string{"channel", "origin"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnirelay_outbound_sends_total",
			Help: "Messages sent to counterparties, by channel and result.",
		}, []string{"channel", "result"}),
		topicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnirelay_topics_created_total",
			Help: "Staff group topics created.",
		}),
		topicsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnirelay_topics_reconciled_total",
			Help: "Topic mappings cleared because the topic vanished.",
		}),
		eventsDequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnirelay_events_dequeued_total",
			Help: "Outbound events handed to the external consumer.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnirelay_http_requests_total",
			Help: "Pull API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inbound,
		m.sends,
		m.topicsCreated,
		m.topicsReconciled,
		m.eventsDequeued,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Inbound(channel string, staff bool) {
	if m == nil {
		return
	}
	origin := "client"
	if staff {
		origin = "staff"
	}
	m.inbound.WithLabelValues(channel, origin).Inc()
}

func (m *Metrics) Send(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) TopicCreated() {
	if m == nil {
		return
	}
	m.topicsCreated.Inc()
}

func (m *Metrics) TopicReconciled() {
	if m == nil {
		return
	}
	m.topicsReconciled.Inc()
}

func (m *Metrics) Dequeued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDequeued.Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
