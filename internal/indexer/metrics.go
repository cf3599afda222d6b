package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support_search",
		Subsystem: "indexer",
		Name:      "documents_total",
		Help:      "Documents written to the search cluster by type and action.",
	}, []string{"doc_type", "action"})

	indexFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support_search",
		Subsystem: "indexer",
		Name:      "failures_total",
		Help:      "Indexing operations that failed, by type.",
	}, []string{"doc_type"})

	bulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "support_search",
		Subsystem: "indexer",
		Name:      "bulk_chunk_duration_seconds",
		Help:      "Time spent per bulk chunk.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"doc_type"})
)
