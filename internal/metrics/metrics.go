package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "web3buddy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "web3buddy_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "web3buddy_turns_total",
			Help: "Total chat turns processed",
		},
		[]string{"outcome"}, // "ending", "params_inquiry" or "error"
	)

	TurnFragments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "web3buddy_turn_fragments",
			Help:    "Streamed fragments per turn",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "web3buddy_tool_executions_total",
			Help: "Total tool executions",
		},
		[]string{"tool", "status"}, // status is "ok" or "error"
	)

	// Store metrics
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "web3buddy_store_failures_total",
			Help: "Total history store failures",
		},
		[]string{"operation"},
	)
)
