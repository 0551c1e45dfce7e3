// Package metrics owns ava's Prometheus registry.
//
// All collectors are registered on a private registry (not the global default)
// so tests can build as many as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ava"

// Registry groups the collectors used across the service.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	AuthEvents       *prometheus.CounterVec
	NotifyDeliveries *prometheus.CounterVec
	JanitorPurged    *prometheus.CounterVec
}

// New builds a Registry with process and Go runtime collectors included.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "class"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		AuthEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Auth operations by event and result.",
		}, []string{"event", "result"}),
		NotifyDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Outbound notification attempts by transport and result.",
		}, []string{"transport", "result"}),
		JanitorPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "purged_rows_total",
			Help:      "Expired rows removed by the janitor, by table.",
		}, []string{"table"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequests,
		r.HTTPDuration,
		r.AuthEvents,
		r.NotifyDeliveries,
		r.JanitorPurged,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry (used by tests).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Auth counts an auth event. A nil Registry is a no-op.
func (r *Registry) Auth(event, result string) {
	if r == nil {
		return
	}
	r.AuthEvents.WithLabelValues(event, result).Inc()
}

// Purged counts rows removed by the janitor. A nil Registry is a no-op.
func (r *Registry) Purged(table string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.JanitorPurged.WithLabelValues(table).Add(float64(n))
}
