package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	tasksSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanread",
			Name:      "tasks_synced_total",
			Help:      "Sync tasks delivered to the workspace.",
		},
	)

	tasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanread",
			Name:      "tasks_failed_total",
			Help:      "Sync tasks terminally failed, by reason.",
		},
		[]string{"reason"},
	)

	taskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanread",
			Name:      "task_retries_total",
			Help:      "Sync task delivery retries.",
		},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanread",
			Name:      "remote_requests_total",
			Help:      "Workspace API requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	drains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanread",
			Name:      "drains_total",
			Help:      "Drain loop starts.",
		},
	)

	queuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lanread",
			Name:      "queue_pending",
			Help:      "Tasks currently waiting in the sync queue.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(tasksSynced, tasksFailed, taskRetries, remoteRequests, drains, queuePending)
	})
}

func IncTaskSynced()              { tasksSynced.Inc() }
func IncTaskFailed(reason string) { tasksFailed.WithLabelValues(reason).Inc() }
func IncTaskRetry()               { taskRetries.Inc() }
func IncDrain()                   { drains.Inc() }
func SetQueuePending(n float64)   { queuePending.Set(n) }

// IncRemoteRequest records one workspace API call outcome.
func IncRemoteRequest(operation, outcome string) {
	remoteRequests.WithLabelValues(operation, outcome).Inc()
}
