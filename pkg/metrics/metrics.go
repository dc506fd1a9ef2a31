package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced     *prometheus.CounterVec
	ordersRejected   *prometheus.CounterVec
	placementLatency *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// New creates the collectors on a private registry, so tests and multiple
// instances in one process do not collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders acknowledged, by order type.",
		}, []string{"order_type"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Order placements that failed, by error kind.",
		}, []string{"kind"}),
		placementLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_placement_seconds",
			Help:      "Time spent placing an order.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.ordersPlaced,
		m.ordersRejected,
		m.placementLatency,
		m.httpRequests,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OrderPlaced(orderType string, d time.Duration) {
	m.ordersPlaced.WithLabelValues(orderType).Inc()
	m.placementLatency.WithLabelValues("placed").Observe(d.Seconds())
}

func (m *Metrics) OrderRejected(kind string, d time.Duration) {
	m.ordersRejected.WithLabelValues(kind).Inc()
	m.placementLatency.WithLabelValues("rejected").Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
