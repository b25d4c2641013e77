package metrics

// ============================================================================
// Metrics test suite
// Purpose: verify collector construction and recording methods
// ============================================================================

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsScheduled, "jobsScheduled counter should be initialized")
	assert.NotNil(t, collector.jobsAdmitted, "jobsAdmitted counter should be initialized")
	assert.NotNil(t, collector.jobsCompleted, "jobsCompleted counter should be initialized")
	assert.NotNil(t, collector.jobsRetried, "jobsRetried counter should be initialized")
	assert.NotNil(t, collector.jobsAbandoned, "jobsAbandoned counter should be initialized")
	assert.NotNil(t, collector.jobsTimedOut, "jobsTimedOut counter should be initialized")
	assert.NotNil(t, collector.jobsFailed, "jobsFailed counter should be initialized")
	assert.NotNil(t, collector.jobsQueued, "jobsQueued gauge should be initialized")
	assert.NotNil(t, collector.jobsRunning, "jobsRunning gauge should be initialized")
	assert.NotNil(t, collector.recoveryTime, "recoveryTime gauge should be initialized")
	assert.NotNil(t, collector.checkpointDuration, "checkpointDuration gauge should be initialized")
}

func TestCounterRecording(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	recorders := []func(){
		collector.RecordScheduled,
		collector.RecordAdmitted,
		collector.RecordCompleted,
		collector.RecordRetried,
		collector.RecordAbandoned,
		collector.RecordTimedOut,
		collector.RecordFailed,
	}

	for _, record := range recorders {
		assert.NotPanics(t, func() {
			for i := 0; i < 5; i++ {
				record()
			}
		})
	}
}

func TestGaugeRecording(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.UpdateQueueStats(7, 3)
		collector.UpdateQueueStats(0, 0)
		collector.SetRecoveryTime(0.42)
		collector.SetCheckpointDuration(0.01)
	})
}
