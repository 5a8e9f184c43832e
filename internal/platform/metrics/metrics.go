package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so several servers (or tests) can live in
// one process. All Observe/Inc helpers are safe to call on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	GroupsCommittedTotal   prometheus.Counter
	ValidationFailures     *prometheus.CounterVec
	QuotesComputedTotal    prometheus.Counter
	StatusTransitionsTotal *prometheus.CounterVec
	OpenSessions           prometheus.Gauge
	SessionsExpiredTotal   prometheus.Counter
}

func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		GroupsCommittedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "plan",
			Name:      "groups_committed_total",
			Help:      "Total treatment groups committed.",
		}),

		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "plan",
			Name:      "validation_failures_total",
			Help:      "Rejected user actions by reason.",
		}, []string{"reason"}),

		QuotesComputedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "pricing",
			Name:      "quotes_computed_total",
			Help:      "Total quotes computed.",
		}),

		StatusTransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "requests",
			Name:      "status_transitions_total",
			Help:      "Lab request status changes.",
		}, []string{"from", "to"}),

		OpenSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "plan",
			Name:      "open_sessions",
			Help:      "Editing sessions currently open.",
		}),

		SessionsExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "plan",
			Name:      "sessions_expired_total",
			Help:      "Editing sessions dropped after sitting idle.",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) GroupCommitted() {
	if c == nil {
		return
	}
	c.GroupsCommittedTotal.Inc()
}

func (c *Collector) ValidationFailed(reason string) {
	if c == nil {
		return
	}
	c.ValidationFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) QuoteComputed() {
	if c == nil {
		return
	}
	c.QuotesComputedTotal.Inc()
}

func (c *Collector) StatusChanged(from, to string) {
	if c == nil {
		return
	}
	c.StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.OpenSessions.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.OpenSessions.Dec()
}

// SessionExpired closes a session that was never saved or discarded.
func (c *Collector) SessionExpired() {
	if c == nil {
		return
	}
	c.OpenSessions.Dec()
	c.SessionsExpiredTotal.Inc()
}
