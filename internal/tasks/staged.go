// ============================================================================
// Stagerunner Staged Task - Three-Phase Demonstration Job
// ============================================================================
//
// Package: internal/tasks
// File: staged.go
// Purpose: A job with three named phases and the marker discipline the
//          scheduler's persistence model relies on
//
// Each phase is a run of substeps; the phase marker is set only after the
// last substep of that phase completes. A fresh iterator (after a retry
// or a restart) therefore skips fully completed phases and re-runs the
// phase that was mid-execution from its first substep. Only the markers
// persist; the in-phase substep counter is deliberately transient.
//
// ============================================================================

package tasks

import (
	"encoding/json"

	"github.com/kiselas/stagerunner/pkg/types"
)

// Phase substep width. Three substeps per phase keeps each phase multiple
// yields long, so persistence at phase granularity is observable.
const substepsPerPhase = 3

// StagedTask runs three named phases of several substeps each
type StagedTask struct {
	Base

	// Phase completion markers, set after the phase's last substep
	First  bool
	Second bool
	Third  bool

	// Transient substep position inside the current phase
	substep int

	// fault, when set, is consulted at the start of each phase; returning
	// true signals a recoverable failure for that attempt
	fault func(phase int) bool
}

// NewStagedTask builds a staged task with a generated ID
func NewStagedTask() *StagedTask {
	return &StagedTask{Base: NewBase()}
}

// SetFault installs a failure hook for exercising the retry path
func (t *StagedTask) SetFault(fault func(phase int) bool) {
	t.fault = fault
}

func (t *StagedTask) Kind() string { return KindStaged }

// Advance performs one substep of the first incomplete phase
func (t *StagedTask) Advance() (types.StepOutcome, error) {
	phase, marker := t.currentPhase()
	if marker == nil {
		return types.StepExhausted, nil
	}

	if t.substep == 0 && t.fault != nil && t.fault(phase) {
		log.Info("Staged task hit injected fault", "id", t.meta.ID, "phase", phase)
		return types.StepRetry, nil
	}

	t.substep++
	log.Debug("Staged task substep", "id", t.meta.ID, "phase", phase, "substep", t.substep)
	if t.substep >= substepsPerPhase {
		*marker = true
		t.substep = 0
	}
	return types.StepProgress, nil
}

// currentPhase returns the 1-based first incomplete phase and its marker,
// or nil when every phase is done
func (t *StagedTask) currentPhase() (int, *bool) {
	switch {
	case !t.First:
		return 1, &t.First
	case !t.Second:
		return 2, &t.Second
	case !t.Third:
		return 3, &t.Third
	default:
		return 0, nil
	}
}

// Reset clears the phase markers for a fresh attempt
func (t *StagedTask) Reset() {
	t.First, t.Second, t.Third = false, false, false
	t.substep = 0
}

type stagedState struct {
	First  bool `json:"first"`
	Second bool `json:"second"`
	Third  bool `json:"third"`
}

func (t *StagedTask) MarshalState() ([]byte, error) {
	return json.Marshal(stagedState{First: t.First, Second: t.Second, Third: t.Third})
}

func (t *StagedTask) UnmarshalState(data []byte) error {
	var s stagedState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.First, t.Second, t.Third = s.First, s.Second, s.Third
	return nil
}
