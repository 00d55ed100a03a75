// Package metrics holds the Prometheus collectors of the engine. They are
// registered on the default registry when the package is loaded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tws_http_requests_total",
			Help: "Total number of HTTP responses written, by method and status",
		},
		[]string{"method", "status"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tws_handler_duration_seconds",
			Help:    "Handler invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "in_pool"},
	)

	ResponseSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tws_http_response_size_bytes",
			Help:    "Serialized HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tws_connections_active",
			Help: "Current number of open client connections",
		},
	)

	RejectedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tws_connections_rejected_total",
			Help: "Connections refused because the connection limit was reached",
		},
	)

	MalformedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tws_requests_malformed_total",
			Help: "Connections closed because the request could not be parsed",
		},
	)

	PoolDispatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tws_pool_dispatches_total",
			Help: "Requests handed from the event loop to the worker pool",
		},
	)

	RecursiveSwitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tws_recursive_switches_total",
			Help: "Handlers that asked to switch threads from inside the pool",
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tws_dispatch_queue_depth",
			Help: "Tasks waiting for a pool worker",
		},
	)
)
