// Package metrics exposes relay activity as Prometheus metrics.
//
// Collectors live on a private registry rather than the global default one,
// so several relays (or tests) can coexist in one process. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/danmurelay/internal/fault"
)

const namespace = "danmurelay"

// Metrics holds the relay's collectors.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal       prometheus.Counter
	sessionsTotal     *prometheus.CounterVec
	connected         prometheus.Gauge
	broadcastsTotal   prometheus.Counter
	subscribers       *prometheus.GaugeVec
	evictionsTotal    prometheus.Counter
	errorsTotal       *prometheus.CounterVec
	pullRequestsTotal prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_frames_total",
			Help:      "Frames received from the upstream feed",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_sessions_total",
			Help:      "Upstream connection attempts by result",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_connected",
			Help:      "1 while the upstream connection is open",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Distinct records pushed to subscribers",
		}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live push subscribers by transport",
		}, []string{"transport"}),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_evictions_total",
			Help:      "Subscribers removed after a failed write",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Non-fatal relay errors by kind",
		}, []string{"kind"}),
		pullRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_requests_total",
			Help:      "Requests served by the pull endpoint",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesTotal, m.sessionsTotal, m.connected, m.broadcastsTotal,
		m.subscribers, m.evictionsTotal, m.errorsTotal, m.pullRequestsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FrameReceived counts one upstream frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
}

// SessionOpened records a successful upstream dial.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues("ok").Inc()
	m.connected.Set(1)
}

// SessionFailed records a failed upstream dial.
func (m *Metrics) SessionFailed() {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues("error").Inc()
	m.connected.Set(0)
}

// SessionClosed records the end of an open upstream session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

// Broadcast counts one pushed record.
func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}

// SubscriberJoined increments the live subscriber gauge for transport.
func (m *Metrics) SubscriberJoined(transport string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(transport).Inc()
}

// SubscriberLeft decrements the live subscriber gauge for transport.
func (m *Metrics) SubscriberLeft(transport string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(transport).Dec()
}

// Evicted counts one subscriber dropped after a failed write.
func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictionsTotal.Inc()
}

// PullServed counts one pull request.
func (m *Metrics) PullServed() {
	if m == nil {
		return
	}
	m.pullRequestsTotal.Inc()
}

// ObserveError counts e by kind. It has the shape of a fault.Hook.
func (m *Metrics) ObserveError(e *fault.Error) {
	if m == nil || e == nil {
		return
	}
	m.errorsTotal.WithLabelValues(e.Kind.String()).Inc()
}
