package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DecisionsTotal counts served requests per cache strategy
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facetgraph_decisions_total",
			Help: "Total number of graph requests by cache strategy",
		},
		[]string{"strategy"},
	)

	// BuildDuration tracks end-to-end graph request latency
	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facetgraph_build_duration_seconds",
			Help:    "Time spent serving a graph request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"graph_type"},
	)

	// TrimTotal counts trimmed views
	TrimTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facetgraph_trim_total",
			Help: "Total number of trimmed graph views",
		},
		[]string{"graph_type"},
	)

	// BreakerRejections counts calls refused by an open circuit breaker
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facetgraph_breaker_rejections_total",
			Help: "Calls to a collaborator rejected by its circuit breaker",
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(TrimTotal)
	prometheus.MustRegister(BreakerRejections)
}
