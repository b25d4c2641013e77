// ============================================================================
// Stagerunner Job Contract - Cooperative Multi-Stage Tasks
// ============================================================================
//
// Package: internal/job
// File: job.go
// Purpose: Task contract and the stage iterator that drives one task
//
// Execution Model:
//   A task is a small state machine. Its body is split into stages; each
//   call to Advance performs exactly one stage's worth of work and then
//   yields control back to the scheduler. The task records a marker only
//   after a stage fully completes, so a fresh iterator built over the
//   same task (after a retry or a process restart) skips exactly the
//   stages that finished and re-runs the one that was mid-execution.
//
//   Advance outcomes:
//     - StepProgress:  stage executed, call again later
//     - StepExhausted: no stages remain, the task is complete
//     - StepRetry:     recoverable failure, restart the stage sequence
//   A non-nil error from Advance is an unexpected failure; the scheduler
//   logs it and drops the task.
//
// Iterator:
//   The running set holds Iterator handles, not tasks. A retry swaps the
//   handle for a fresh one bound to the same task, which keeps the
//   iterator-to-task association explicit and lets the scheduler replace
//   it atomically within a tick.
//
// Serialisation:
//   Tasks persist through MarshalState/UnmarshalState plus the shared
//   JobMeta. Kind names the task type in the registry so a later process
//   can reconstruct the concrete task from its snapshot envelope.
//
// ============================================================================

package job

import (
	"encoding/json"
	"fmt"

	"github.com/kiselas/stagerunner/pkg/types"
)

// Task is a unit of work driven one stage at a time by the scheduler
type Task interface {
	// Meta exposes the scheduling metadata. The scheduler mutates Tries
	// through this pointer, so it must return the same instance every call.
	Meta() *types.JobMeta

	// Advance performs one stage of work and yields control.
	// A non-nil error means an unexpected, non-retryable failure.
	Advance() (types.StepOutcome, error)

	// Reset clears the task's stage-completion markers so the next
	// iterator starts from stage zero.
	Reset()

	// Kind returns the registry key used to reconstruct the task from a
	// snapshot.
	Kind() string

	// MarshalState serialises the task body (stage markers and payload).
	MarshalState() ([]byte, error)

	// UnmarshalState restores the task body from serialised state.
	UnmarshalState(data []byte) error
}

// Iterator is the running-set handle for one task attempt
type Iterator struct {
	task  Task
	steps int // Stages advanced through this handle
}

// NewIterator materialises a fresh stage iterator over a task
func NewIterator(t Task) *Iterator {
	return &Iterator{task: t}
}

// Task returns the owning task
func (it *Iterator) Task() Task {
	return it.task
}

// Steps returns how many stages this handle has advanced
func (it *Iterator) Steps() int {
	return it.steps
}

// Next advances the task by one stage
func (it *Iterator) Next() (types.StepOutcome, error) {
	outcome, err := it.task.Advance()
	if err == nil && outcome == types.StepProgress {
		it.steps++
	}
	return outcome, err
}

// Encode packs a task into its snapshot envelope
func Encode(t Task) (types.SnapshotEnvelope, error) {
	state, err := t.MarshalState()
	if err != nil {
		return types.SnapshotEnvelope{}, fmt.Errorf("failed to marshal task state: %w", err)
	}
	return types.SnapshotEnvelope{
		SchemaVer: 1,
		Kind:      t.Kind(),
		Meta:      *t.Meta(),
		State:     json.RawMessage(state),
	}, nil
}
