package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Polling loop / claim metrics

	ClaimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "claim_latency_seconds",
		Help:      "Time from a task's execution_time to the moment a worker claims it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ClaimBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "claim_batch_size",
		Help:      "Number of tasks claimed per polling cycle.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	PollCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Time taken for one polling-loop cycle (recover + claim + dispatch).",
		Buckets:   prometheus.DefBuckets,
	})

	// Execution pipeline metrics

	ExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "execution_duration_seconds",
		Help:      "Duration of one task execution, from claim to finalize.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	TasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "tasks_in_flight",
		Help:      "Number of tasks currently being executed by this worker.",
	})

	TasksFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "tasks_finished_total",
		Help:      "Total tasks finalized, by outcome (completed, rescheduled, rescheduled_after_failure, rescheduled_after_decode_failure, poisoned, lease_lost).",
	}, []string{"outcome"})

	TaskAttemptFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "task_attempt_failures_total",
		Help:      "Total failed execution attempts, by failure kind.",
	}, []string{"kind"})

	// Lease recovery metrics

	LeasesRecoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "leases_recovered_total",
		Help:      "Total stale leases reclaimed from crashed or stalled workers.",
	})

	LeaseRecoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "lease_recovery_duration_seconds",
		Help:      "Time taken for one lease-recovery sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ClaimLatency,
		ClaimBatchSize,
		PollCycleDuration,
		ExecutionDuration,
		TasksInFlight,
		TasksFinishedTotal,
		TaskAttemptFailuresTotal,
		LeasesRecoveredTotal,
		LeaseRecoveryDuration,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
