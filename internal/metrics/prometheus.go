package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmittedTotal counts accepted submissions per category.
	TasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_tasks_submitted_total",
			Help: "Total number of submitted tasks.",
		},
		[]string{"category"},
	)

	// TaskAttemptsTotal counts execution attempts by outcome (success, failure, timeout).
	TaskAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_task_attempts_total",
			Help: "Total number of task execution attempts.",
		},
		[]string{"category", "outcome"},
	)

	// TasksFinishedTotal counts resolved task handles by final outcome
	// (completed, exhausted, shutdown, rejected).
	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_tasks_finished_total",
			Help: "Total number of tasks whose result handle was resolved.",
		},
		[]string{"category", "outcome"},
	)

	// ExecutionDurationSeconds observes the wall time of each attempt.
	ExecutionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditflow_execution_duration_seconds",
			Help:    "Duration of task execution attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	QueueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditflow_queue_depth",
			Help: "Number of tasks waiting in the queue.",
		},
		[]string{"scheduler"},
	)

	// BusyWorkersGauge includes workers still held by a timed-out execution.
	BusyWorkersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditflow_busy_workers",
			Help: "Number of workers currently executing a task.",
		},
		[]string{"scheduler"},
	)

	ConcurrencyLimitGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditflow_concurrency_limit",
			Help: "Configured ceiling of concurrently busy workers.",
		},
		[]string{"scheduler"},
	)

	// ErroredWorkersGauge tracks workers parked in the errored state.
	ErroredWorkersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditflow_errored_workers",
			Help: "Number of workers in the errored state.",
		},
		[]string{"scheduler"},
	)
)

// SchedulerGauges are the gauges of one named scheduler instance.
type SchedulerGauges struct {
	QueueDepth       prometheus.Gauge
	BusyWorkers      prometheus.Gauge
	ConcurrencyLimit prometheus.Gauge
	ErroredWorkers   prometheus.Gauge
}

func ForScheduler(name string) SchedulerGauges {
	return SchedulerGauges{
		QueueDepth:       QueueDepthGauge.WithLabelValues(name),
		BusyWorkers:      BusyWorkersGauge.WithLabelValues(name),
		ConcurrencyLimit: ConcurrencyLimitGauge.WithLabelValues(name),
		ErroredWorkers:   ErroredWorkersGauge.WithLabelValues(name),
	}
}
