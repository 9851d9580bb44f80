package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estatesync",
			Name:      "sync_runs_total",
			Help:      "Sync runs by sync type and final status.",
		},
		[]string{"sync_type", "status"},
	)

	records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estatesync",
			Name:      "records_total",
			Help:      "Records processed by result.",
		},
		[]string{"result"},
	)

	retryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "estatesync",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts against the relational store.",
		},
	)

	queuedChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "estatesync",
			Name:      "queued_changes_total",
			Help:      "Changes escalated to the pending-change queue.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "estatesync",
			Name:      "pending_queue_depth",
			Help:      "Pending rows currently in the change queue.",
		},
	)

	batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "estatesync",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one ProcessBatch call.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"sync_type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncRuns, records, retryAttempts, queuedChanges, queueDepth, batchDuration)
	})
}

// IncSyncRun counts a finished sync run.
func IncSyncRun(syncType, status string) {
	syncRuns.WithLabelValues(syncType, status).Inc()
}

// AddRecords counts processed records by result ("success" or "failed").
func AddRecords(result string, n int) {
	records.WithLabelValues(result).Add(float64(n))
}

// IncRetryAttempt counts one retry against the store.
func IncRetryAttempt() {
	retryAttempts.Inc()
}

// IncQueuedChange counts one escalation to the durable queue.
func IncQueuedChange() {
	queuedChanges.Inc()
}

// SetQueueDepth publishes the current pending-change backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveBatchDuration records the wall time of one batch run.
func ObserveBatchDuration(syncType string, seconds float64) {
	batchDuration.WithLabelValues(syncType).Observe(seconds)
}
