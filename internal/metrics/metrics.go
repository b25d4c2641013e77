// ============================================================================
// Stagerunner Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose scheduler metrics for Prometheus monitoring
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - scheduler_jobs_scheduled_total: Jobs appended to the ready queue
//      - scheduler_jobs_admitted_total: Jobs promoted into the running set
//      - scheduler_jobs_completed_total: Jobs whose stages exhausted
//      - scheduler_jobs_retried_total: Retry re-materialisations
//      - scheduler_jobs_abandoned_total: Jobs dropped on exhausted budget
//      - scheduler_jobs_timed_out_total: Jobs dropped past their deadline
//      - scheduler_jobs_failed_total: Jobs dropped on unexpected errors
//
//   2. Status Metrics (Gauge) - Instantaneous values:
//      - scheduler_jobs_queued: Current ready-queue length
//      - scheduler_jobs_running: Current running-set size
//      - scheduler_recovery_time_seconds: Last snapshot-restore duration
//      - scheduler_checkpoint_duration_seconds: Last checkpoint duration
//
// Prometheus Query Examples:
//
//   # Completions per minute
//   rate(scheduler_jobs_completed_total[1m])
//
//   # Retry pressure
//   rate(scheduler_jobs_retried_total[5m])
//
//   # Backlog
//   scheduler_jobs_queued + scheduler_jobs_running
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus. Default port: 9090.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics
type Collector struct {
	// Job counters
	jobsScheduled prometheus.Counter
	jobsAdmitted  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsRetried   prometheus.Counter
	jobsAbandoned prometheus.Counter
	jobsTimedOut  prometheus.Counter
	jobsFailed    prometheus.Counter

	// Status metrics
	jobsQueued         prometheus.Gauge
	jobsRunning        prometheus.Gauge
	recoveryTime       prometheus.Gauge
	checkpointDuration prometheus.Gauge
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		jobsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_scheduled_total",
			Help: "Total number of jobs appended to the ready queue",
		}),
		jobsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_admitted_total",
			Help: "Total number of jobs admitted into the running set",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_completed_total",
			Help: "Total number of jobs that exhausted their stages",
		}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_retried_total",
			Help: "Total number of retry re-materialisations",
		}),
		jobsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_abandoned_total",
			Help: "Total number of jobs abandoned after exhausting retries",
		}),
		jobsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_timed_out_total",
			Help: "Total number of jobs dropped past their working-time budget",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_failed_total",
			Help: "Total number of jobs dropped on unexpected errors",
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_jobs_queued",
			Help: "Current number of jobs in the ready queue",
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_jobs_running",
			Help: "Current number of jobs in the running set",
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_recovery_time_seconds",
			Help: "Time taken to restore job sets from snapshots",
		}),
		checkpointDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_checkpoint_duration_seconds",
			Help: "Time taken by the last checkpoint",
		}),
	}

	// Register all metrics
	prometheus.MustRegister(c.jobsScheduled)
	prometheus.MustRegister(c.jobsAdmitted)
	prometheus.MustRegister(c.jobsCompleted)
	prometheus.MustRegister(c.jobsRetried)
	prometheus.MustRegister(c.jobsAbandoned)
	prometheus.MustRegister(c.jobsTimedOut)
	prometheus.MustRegister(c.jobsFailed)
	prometheus.MustRegister(c.jobsQueued)
	prometheus.MustRegister(c.jobsRunning)
	prometheus.MustRegister(c.recoveryTime)
	prometheus.MustRegister(c.checkpointDuration)

	return c
}

// RecordScheduled records a job appended to the ready queue
func (c *Collector) RecordScheduled() {
	c.jobsScheduled.Inc()
}

// RecordAdmitted records a job promoted into the running set
func (c *Collector) RecordAdmitted() {
	c.jobsAdmitted.Inc()
}

// RecordCompleted records a naturally exhausted job
func (c *Collector) RecordCompleted() {
	c.jobsCompleted.Inc()
}

// RecordRetried records a retry re-materialisation
func (c *Collector) RecordRetried() {
	c.jobsRetried.Inc()
}

// RecordAbandoned records a job dropped on exhausted retry budget
func (c *Collector) RecordAbandoned() {
	c.jobsAbandoned.Inc()
}

// RecordTimedOut records a job dropped past its deadline
func (c *Collector) RecordTimedOut() {
	c.jobsTimedOut.Inc()
}

// RecordFailed records a job dropped on an unexpected error
func (c *Collector) RecordFailed() {
	c.jobsFailed.Inc()
}

// UpdateQueueStats updates the queue size gauges
func (c *Collector) UpdateQueueStats(queued, running int) {
	c.jobsQueued.Set(float64(queued))
	c.jobsRunning.Set(float64(running))
}

// SetRecoveryTime sets the snapshot-restore duration gauge
func (c *Collector) SetRecoveryTime(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// SetCheckpointDuration sets the checkpoint duration gauge
func (c *Collector) SetCheckpointDuration(seconds float64) {
	c.checkpointDuration.Set(seconds)
}

// StartServer starts the Prometheus metrics HTTP server
//
// Parameters:
//   - port: HTTP server port
//
// Returns:
//   - error: Error on startup failure
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
