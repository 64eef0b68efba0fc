// Package metric provides Prometheus metrics for the rxhttp server.
//
// It exposes connection, exchange and subscription metrics in Prometheus
// format, next to the Go runtime and process collectors.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rxhttp"

// Registry holds all application metrics. A nil *Registry is valid and
// records nothing.
type Registry struct {
	registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	ConnectionsActive   prometheus.Gauge

	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	HandlerFailures  prometheus.Counter

	Subscriptions *prometheus.CounterVec
	Terminals     *prometheus.CounterVec
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections that passed the admission filter.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused by the admission filter.",
		}, []string{"reason"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}),
		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Completed request/response exchanges.",
		}, []string{"method", "status"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from request meta to the end of the response body.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HandlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Exchanges answered with the generated error response.",
		}),
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Traced producer subscriptions.",
		}, []string{"kind"}),
		Terminals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_signals_total",
			Help:      "Terminal signals seen by traced subscriptions.",
		}, []string{"kind", "signal"}),
	}

	r.registry.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsRejected,
		r.ConnectionsActive,
		r.ExchangesTotal,
		r.ExchangeDuration,
		r.HandlerFailures,
		r.Subscriptions,
		r.Terminals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing r.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// MustRegister adds extra collectors to r.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// ConnectionAccepted records an admitted connection.
func (r *Registry) ConnectionAccepted() {
	if r == nil {
		return
	}
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

// ConnectionClosed records the end of an admitted connection.
func (r *Registry) ConnectionClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

// ConnectionRejected records a refused connection.
func (r *Registry) ConnectionRejected(reason string) {
	if r == nil {
		return
	}
	r.ConnectionsRejected.WithLabelValues(reason).Inc()
}

// ObserveExchange records one completed exchange.
func (r *Registry) ObserveExchange(method, status string, seconds float64) {
	if r == nil {
		return
	}
	r.ExchangesTotal.WithLabelValues(method, status).Inc()
	r.ExchangeDuration.WithLabelValues(method).Observe(seconds)
}

// HandlerFailed records a service failure converted into an error response.
func (r *Registry) HandlerFailed() {
	if r == nil {
		return
	}
	r.HandlerFailures.Inc()
}

// Subscribed records a traced subscription of the given producer kind.
func (r *Registry) Subscribed(kind string) {
	if r == nil {
		return
	}
	r.Subscriptions.WithLabelValues(kind).Inc()
}

// Terminated records a terminal signal ("complete", "error" or "cancel").
func (r *Registry) Terminated(kind, signal string) {
	if r == nil {
		return
	}
	r.Terminals.WithLabelValues(kind, signal).Inc()
}
