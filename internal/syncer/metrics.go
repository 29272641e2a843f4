package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOutcomes counts single-document syncs by action and outcome.
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_operations_total",
			Help: "Total number of single-document index syncs by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// ResyncRuns counts resync runs by result (success, partial, failed, rejected).
	ResyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_resync_runs_total",
			Help: "Total number of resync runs by result",
		},
		[]string{"result"},
	)

	// ResyncDocuments counts documents handled by resyncs.
	ResyncDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_resync_documents_total",
			Help: "Total number of documents handled by resync runs by result",
		},
		[]string{"result"},
	)

	// ResyncDuration observes the wall time of resync runs.
	ResyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "search_resync_duration_seconds",
		Help:    "Duration of resync runs in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)
