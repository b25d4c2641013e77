// ============================================================================
// Stagerunner Resume Test Suite
// ============================================================================
//
// Package: test/integration
// File: resume_test.go
// Purpose: end-to-end stop/checkpoint/resume across scheduler instances
//
// Scenario:
//   1. Schedule two multi-phase jobs and request a stop mid-run via the
//      on-disk flag, the way an external operator would.
//   2. Verify the checkpoint: snapshot files for every unfinished job and
//      the resume marker on disk.
//   3. Construct a brand new scheduler over the same paths and let it
//      drain. Both jobs must complete exactly once and all transient
//      control files must be gone.
//
// The staged task's phase markers make resumption observable: progress
// made before the stop is not repeated at phase granularity.
//
// ============================================================================

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiselas/stagerunner/internal/controlfile"
	"github.com/kiselas/stagerunner/internal/scheduler"
	"github.com/kiselas/stagerunner/internal/tasks"
)

func testConfig(t *testing.T) scheduler.Config {
	t.Helper()
	dir := t.TempDir()
	return scheduler.Config{
		QueuedDir:          filepath.Join(dir, "queued"),
		RunningDir:         filepath.Join(dir, "running"),
		DoneLogPath:        filepath.Join(dir, "done.txt"),
		ConditionCachePath: filepath.Join(dir, "condition.json"),
		SchedulerDataPath:  filepath.Join(dir, "scheduler_data.json"),
		TickInterval:       time.Millisecond,
	}
}

func doneLines(t *testing.T, cfg scheduler.Config) []string {
	t.Helper()
	data, err := os.ReadFile(cfg.DoneLogPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func snapshotCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestStopAndResumeAcrossInstances(t *testing.T) {
	cfg := testConfig(t)

	// A coarser tick keeps the run alive well past the stop request below
	cfg.TickInterval = 5 * time.Millisecond

	// Phase 1: first scheduler instance, stopped mid-run
	first, err := scheduler.New(cfg)
	require.NoError(t, err)

	jobA := tasks.NewStagedTask()
	jobB := tasks.NewStagedTask()
	jobB.Meta().Dependencies = append(jobB.Meta().Dependencies, jobA.Meta().ID)
	first.Schedule(jobA)
	first.Schedule(jobB)

	// Flip the flag from "outside" after the run makes some progress
	flag := controlfile.NewStopFlag(cfg.ConditionCachePath)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = flag.RequestStop()
	}()

	require.NoError(t, first.Run(context.Background()))

	// Checkpoint on disk: every unfinished job has exactly one snapshot
	// file and the resume marker is present
	assert.FileExists(t, cfg.SchedulerDataPath)
	marker := controlfile.NewSchedulerData(cfg.SchedulerDataPath)
	content, err := marker.Read()
	require.NoError(t, err)
	unfinished := snapshotCount(t, cfg.QueuedDir) + snapshotCount(t, cfg.RunningDir)
	assert.Equal(t, content.LenQueuedTasks+content.LenRunningTasks, unfinished)
	assert.Equal(t, 2, unfinished+len(doneLines(t, cfg)), "no job may be lost at checkpoint")

	// Operator resets the flag before restarting
	require.NoError(t, flag.Remove())

	// Phase 2: fresh instance over the same paths drains everything
	second, err := scheduler.New(cfg)
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))

	done := doneLines(t, cfg)
	assert.ElementsMatch(t,
		[]string{string(jobA.Meta().ID), string(jobB.Meta().ID)}, done)
	assert.Equal(t, string(jobA.Meta().ID), done[0], "dependency completes first")

	assert.Equal(t, 0, snapshotCount(t, cfg.QueuedDir))
	assert.Equal(t, 0, snapshotCount(t, cfg.RunningDir))
	assert.NoFileExists(t, cfg.ConditionCachePath)
	assert.NoFileExists(t, cfg.SchedulerDataPath)
}

func TestDemoStylePipelineDrains(t *testing.T) {
	cfg := testConfig(t)
	sched, err := scheduler.New(cfg)
	require.NoError(t, err)

	base := t.TempDir()
	dirs := []string{filepath.Join(base, "d1"), filepath.Join(base, "d2")}

	mkdir := tasks.NewMkdirTask(dirs)
	touch := tasks.NewTouchTask(dirs)
	touch.Meta().Dependencies = append(touch.Meta().Dependencies, mkdir.Meta().ID)
	sched.Schedule(touch) // dependent first, to exercise requeueing
	sched.Schedule(mkdir)

	require.NoError(t, sched.Run(context.Background()))

	for _, dir := range dirs {
		assert.FileExists(t, filepath.Join(dir, "testfile.txt"))
	}
	assert.Len(t, doneLines(t, cfg), 2)
}
