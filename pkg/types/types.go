// ============================================================================
// Stagerunner Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Core domain models and data structures
//
// Design Principles:
//   1. Domain concepts as types - JobID, StepOutcome instead of raw strings/ints
//   2. Type Safety - Custom types prevent primitive obsession
//   3. JSON Serialization - Full serialization support for snapshots
//   4. Backward Compatibility - Schema versioning on snapshot envelopes
//
// Core Types:
//   - JobID: Stable, globally-unique job identifier
//   - JobMeta: Scheduling metadata (start time, deadline, retry budget, deps)
//   - StepOutcome: Result of advancing one stage of a job
//   - SnapshotEnvelope: Serialised job state written to disk on checkpoint
//
// Usage:
//   - internal/job: Task contract and stage iteration
//   - internal/scheduler: Admission gates and the tick loop
//   - internal/snapshot: State persistence and recovery
//
// ============================================================================

// Package types defines core domain models for the stagerunner system
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobID uniquely identifies a job
type JobID string

// NewJobID generates a fresh random job identifier
func NewJobID() JobID {
	return JobID(uuid.NewString())
}

// StepOutcome represents the result of advancing a job by one stage
type StepOutcome int

// Step outcome constants
const (
	StepProgress  StepOutcome = iota // Stage executed, job yielded control, call again later
	StepExhausted                    // No stages remain, the job is complete
	StepRetry                        // Job detected a recoverable error and wants its stages restarted
)

// String returns a human-readable outcome name for logging
func (o StepOutcome) String() string {
	switch o {
	case StepProgress:
		return "progress"
	case StepExhausted:
		return "exhausted"
	case StepRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// NoDeadline marks a job without a wall-clock execution budget
const NoDeadline = time.Duration(-1)

// JobMeta carries the scheduling metadata shared by all jobs
type JobMeta struct {
	// Identification
	ID JobID `json:"id"` // Unique job identifier

	// Admission gates
	StartAt      time.Time `json:"start_at"`     // Earliest admissible time
	Dependencies []JobID   `json:"dependencies"` // Jobs that must complete first

	// Retry budget
	MaxTries int `json:"max_tries"` // Additional retries allowed after the first attempt
	Tries    int `json:"tries"`     // Retries consumed so far (0 during the first attempt)

	// Deadline (NoDeadline means unbounded), measured from StartAt
	MaxWorkingTime time.Duration `json:"max_working_time"`
}

// NewJobMeta builds metadata with a generated ID, StartAt defaulting to now
// and no deadline
func NewJobMeta() JobMeta {
	return JobMeta{
		ID:             NewJobID(),
		StartAt:        time.Now(),
		MaxWorkingTime: NoDeadline,
	}
}

// Expired reports whether the job has exceeded its working-time budget.
// The budget is measured from StartAt, not from first admission, so jobs
// held back by slow dependencies keep burning their budget.
func (m *JobMeta) Expired(now time.Time) bool {
	if m.MaxWorkingTime == NoDeadline {
		return false
	}
	return now.Sub(m.StartAt) > m.MaxWorkingTime
}

// RetriesLeft reports whether the retry budget allows another attempt
func (m *JobMeta) RetriesLeft() bool {
	return m.Tries < m.MaxTries
}

// SnapshotEnvelope is the on-disk representation of one unfinished job.
// Kind selects the registered task constructor on resume; State is the
// task body's own serialised stage markers.
type SnapshotEnvelope struct {
	SchemaVer int             `json:"schema_ver"` // Schema version for compatibility
	Kind      string          `json:"kind"`       // Registered task kind
	Meta      JobMeta         `json:"meta"`       // Scheduling metadata
	State     json.RawMessage `json:"state"`      // Task body state (stage markers etc.)
}
