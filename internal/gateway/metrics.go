package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphkb",
		Subsystem: "gateway",
		Name:      "queries_total",
		Help:      "Queries by terminal state.",
	}, []string{"state"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "graphkb",
		Subsystem: "gateway",
		Name:      "query_duration_seconds",
		Help:      "Wall time from receipt to terminal state.",
		Buckets:   prometheus.DefBuckets,
	})

	queryRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "graphkb",
		Subsystem: "gateway",
		Name:      "query_rows",
		Help:      "Rows returned per completed query.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
	})
)
