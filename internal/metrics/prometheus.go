package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts accepted submissions by task type.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_jobs_submitted_total",
			Help: "Total number of jobs accepted for asynchronous execution",
		},
		[]string{"task_type"},
	)

	// JobsFinished counts terminal writes by task type and final status.
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"task_type", "status"},
	)

	// JobAttempts counts individual task attempts, including retries.
	JobAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_job_attempts_total",
			Help: "Total number of task execution attempts",
		},
		[]string{"task_type"},
	)

	// ExecutionDuration tracks wall time from first attempt to terminal write.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_execution_duration_seconds",
			Help:    "Duration of job executions in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
		},
		[]string{"task_type"},
	)

	// WorkersActive tracks the number of workers currently handling a job.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// Notifications counts notification publishes by result (sent, error).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_notifications_total",
			Help: "Total number of terminal-state notifications published",
		},
		[]string{"result"},
	)

	// NotificationsDelivered counts events reaching this instance's hub by
	// result (delivered, no_subscriber, dropped).
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_notifications_delivered_total",
			Help: "Total number of notifications routed to local websocket connections",
		},
		[]string{"result"},
	)

	// JobsReconciled counts pending jobs failed by the expiry sweep.
	JobsReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_jobs_reconciled_total",
			Help: "Total number of stale pending jobs failed by the reconciler",
		},
	)

	// WSConnections tracks open websocket connections on this API instance.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_ws_connections",
			Help: "Number of open websocket connections",
		},
	)
)
