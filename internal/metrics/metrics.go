package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	QueueClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_queue_claims_total",
			Help: "Claim attempts by outcome (claimed, empty, exhausted)",
		},
		[]string{"outcome"},
	)

	QueueClaimRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_queue_claim_retries_total",
			Help: "Claim transactions retried after write contention",
		},
	)

	QueueLocksExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_queue_locks_expired_total",
			Help: "Stalled jobs failed because their lease expired",
		},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_jobs_processed_total",
			Help: "Preview jobs finished by status",
		},
		[]string{"status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_job_duration_seconds",
			Help:    "Time spent generating a preview",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	JobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preview_jobs_in_queue",
			Help: "Jobs per status as of the last status query",
		},
		[]string{"status"},
	)

	PreviewBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_output_bytes",
			Help:    "Size of encoded previews in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		},
		[]string{"format"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_bytes_total",
			Help: "Bytes moved through storage",
		},
		[]string{"operation"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
