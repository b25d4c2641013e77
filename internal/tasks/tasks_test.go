package tasks

// ============================================================================
// Example task test suite
// Purpose: verify per-stage filesystem work, reset semantics and the phase
// marker discipline of the staged task
// ============================================================================

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiselas/stagerunner/internal/job"
	"github.com/kiselas/stagerunner/pkg/types"
)

// drain advances a task to exhaustion, returning the advance count
func drain(t *testing.T, task job.Task) int {
	t.Helper()
	steps := 0
	for {
		outcome, err := task.Advance()
		require.NoError(t, err)
		if outcome == types.StepExhausted {
			return steps
		}
		require.Equal(t, types.StepProgress, outcome)
		steps++
		require.Less(t, steps, 1000, "task never exhausted")
	}
}

func TestMkdirTaskCreatesOneDirPerStage(t *testing.T) {
	base := t.TempDir()
	dirs := []string{
		filepath.Join(base, "a"),
		filepath.Join(base, "b"),
		filepath.Join(base, "c"),
	}
	task := NewMkdirTask(dirs)

	steps := drain(t, task)

	assert.Equal(t, len(dirs), steps)
	for _, dir := range dirs {
		assert.DirExists(t, dir)
	}
}

func TestMkdirTaskResetRestoresList(t *testing.T) {
	base := t.TempDir()
	dirs := []string{filepath.Join(base, "a"), filepath.Join(base, "b")}
	task := NewMkdirTask(dirs)

	_, err := task.Advance()
	require.NoError(t, err)
	require.Len(t, task.Pending, 1)

	task.Reset()
	assert.Equal(t, dirs, task.Pending)
}

func TestTouchTaskCreatesMarkerFiles(t *testing.T) {
	base := t.TempDir()
	dirs := []string{filepath.Join(base, "a"), filepath.Join(base, "b")}
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	task := NewTouchTask(dirs)

	steps := drain(t, task)

	assert.Equal(t, len(dirs), steps)
	for _, dir := range dirs {
		assert.FileExists(t, filepath.Join(dir, "testfile.txt"))
	}
}

func TestTouchTaskMissingDirectoryIsUnexpected(t *testing.T) {
	task := NewTouchTask([]string{filepath.Join(t.TempDir(), "missing", "deep")})

	_, err := task.Advance()
	assert.Error(t, err, "touching into a missing directory is not retryable")
}

func TestStagedTaskMarkerDiscipline(t *testing.T) {
	task := NewStagedTask()

	// Phase one completes only after its last substep
	for i := 0; i < substepsPerPhase-1; i++ {
		outcome, err := task.Advance()
		require.NoError(t, err)
		assert.Equal(t, types.StepProgress, outcome)
		assert.False(t, task.First)
	}
	_, err := task.Advance()
	require.NoError(t, err)
	assert.True(t, task.First)
	assert.False(t, task.Second)

	// Remaining phases
	for i := 0; i < 2*substepsPerPhase; i++ {
		_, err := task.Advance()
		require.NoError(t, err)
	}
	outcome, err := task.Advance()
	require.NoError(t, err)
	assert.Equal(t, types.StepExhausted, outcome)
	assert.True(t, task.Third)
}

func TestStagedTaskFaultSignalsRetry(t *testing.T) {
	task := NewStagedTask()
	failures := 1
	task.SetFault(func(phase int) bool {
		if phase == 2 && failures > 0 {
			failures--
			return true
		}
		return false
	})

	// Drive through phase one
	for i := 0; i < substepsPerPhase; i++ {
		outcome, err := task.Advance()
		require.NoError(t, err)
		require.Equal(t, types.StepProgress, outcome)
	}

	// First touch of phase two hits the fault
	outcome, err := task.Advance()
	require.NoError(t, err)
	assert.Equal(t, types.StepRetry, outcome)

	// After a reset the attempt succeeds from phase one
	task.Reset()
	assert.False(t, task.First)
	steps := drain(t, task)
	assert.Equal(t, 3*substepsPerPhase, steps)
}

func TestStagedTaskStatePersistsMarkersOnly(t *testing.T) {
	task := NewStagedTask()
	for i := 0; i < substepsPerPhase; i++ { // complete phase one
		_, err := task.Advance()
		require.NoError(t, err)
	}
	_, err := task.Advance() // one substep into phase two
	require.NoError(t, err)

	state, err := task.MarshalState()
	require.NoError(t, err)

	restored := NewStagedTask()
	require.NoError(t, restored.UnmarshalState(state))
	assert.True(t, restored.First)
	assert.False(t, restored.Second)

	// The restored task re-runs phase two from its first substep
	steps := drain(t, restored)
	assert.Equal(t, 2*substepsPerPhase, steps)
}

func TestFetchTaskRetryOnNetworkFailure(t *testing.T) {
	task := NewFetchTask([]string{"http://127.0.0.1:1/unreachable"}, t.TempDir())
	task.client = &http.Client{Timeout: 100 * time.Millisecond}

	outcome, err := task.Advance()
	require.NoError(t, err)
	assert.Equal(t, types.StepRetry, outcome, "network failures are recoverable")
	assert.Len(t, task.Pending, 1, "failed URL stays pending")
}

func TestFetchTaskDownloadsAndExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page body"))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	task := NewFetchTask([]string{srv.URL}, outDir)

	steps := drain(t, task)
	assert.Equal(t, 1, steps)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	body, err := os.ReadFile(filepath.Join(outDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "page body", string(body))
}
