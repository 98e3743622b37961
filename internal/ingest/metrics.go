package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphkb",
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Submitted batches by outcome.",
	}, []string{"outcome"})

	operationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "graphkb",
		Subsystem: "ingest",
		Name:      "operations_total",
		Help:      "Operations in successfully applied batches.",
	})
)
