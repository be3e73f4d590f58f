package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts store operations by outcome.
	// Labels: operation (ensure_collection, upsert, search, delete_by_document,
	// scan_older_than, delete_points, count, info), result (success, error)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchatd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"operation", "result"},
	)

	// operationDuration tracks how long store operations take.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docchatd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// pointsUpserted counts chunk points written.
	pointsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docchatd",
			Subsystem: "vectorstore",
			Name:      "points_upserted_total",
			Help:      "Total number of chunk points upserted",
		},
	)

	// pointsDeleted counts chunk points removed.
	pointsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docchatd",
			Subsystem: "vectorstore",
			Name:      "points_deleted_total",
			Help:      "Total number of chunk points deleted",
		},
	)
)

// recordOperation records one completed store operation.
func recordOperation(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
