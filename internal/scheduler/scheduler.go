// ============================================================================
// Stagerunner Scheduler - Cooperative Tick Loop
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: Single-threaded cooperative scheduler with on-disk persistence
//
// Architecture:
//   The scheduler is the "brain" of the system and coordinates:
//   - job.Iterator: one handle per admitted job, advanced one stage per tick
//   - donelog.Log: the durable completed-job record and dependency oracle
//   - snapshot.Store: per-job serialised state for stop/resume
//   - controlfile: the polled stop flag and the resume marker
//
// Tick Anatomy (one pass of the loop):
//   1. Admission phase - pop up to PoolSize jobs from the ready queue;
//      jobs denied by the start gate or the dependency gate go back to the
//      tail, which keeps the head from blocking everyone behind it.
//   2. Execution phase - advance every iterator in the running set once,
//      in insertion order, re-reading the stop flag before each step.
//   3. Quiescent sleep - one tick interval, to throttle the poll loop.
//   4. Termination test - both sets empty means drain; clean up and exit.
//
// Outcome Handling:
//   - exhausted: append to the done log, then remove from the running set
//     (strictly in that order - the log is the dependency oracle)
//   - retry: if budget remains, bump Tries, reset the task and swap in a
//     fresh iterator; otherwise abandon
//   - progress past deadline: drop without a done-log entry
//   - unexpected error: log with context and drop
//
// Stop and Resume:
//   A stop request (flag file or context cancellation) unwinds the loop,
//   serialises the ready queue into queued/ and the running set into
//   running/, and writes the resume marker. Construction checks for that
//   marker: present means rebuild both sets from snapshots, absent means
//   a fresh run and the done log is truncated.
//
// Concurrency:
//   Single-threaded by design. Jobs only suspend at their own stage
//   boundaries, so there is exactly one driver of progress and the shared
//   files need no locking. The cost is that blocking I/O inside a stage
//   blocks the whole scheduler; the model trades throughput for
//   observability and simple persistence.
//
// ============================================================================

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiselas/stagerunner/internal/controlfile"
	"github.com/kiselas/stagerunner/internal/donelog"
	"github.com/kiselas/stagerunner/internal/job"
	"github.com/kiselas/stagerunner/internal/metrics"
	"github.com/kiselas/stagerunner/internal/snapshot"
	"github.com/kiselas/stagerunner/pkg/types"
)

var log = slog.Default()

// ============================================================================
// Error Definitions
// ============================================================================

var (
	// ErrStopRequested unwinds the loop when the stop flag reads false
	ErrStopRequested = errors.New("stop requested via condition cache")
	// ErrInterrupted unwinds the loop on context cancellation
	ErrInterrupted = errors.New("interrupted")
)

// ============================================================================
// Configuration
// ============================================================================

// Default configuration values
const (
	DefaultPoolSize     = 10          // Admission width per tick
	DefaultTickInterval = time.Second // Quiescent sleep between ticks
)

// Default filesystem paths
const (
	DefaultQueuedDir         = "./queued_tasks/"
	DefaultRunningDir        = "./running_tasks/"
	DefaultDoneLogPath       = "_done_tasks.txt"
	DefaultConditionCache    = "_condition_cache.json"
	DefaultSchedulerDataPath = "scheduler_data.json"
)

// Config holds the scheduler configuration. All filesystem paths are
// explicit so tests and multiple deployments can isolate their runs.
type Config struct {
	QueuedDir          string        // Snapshot directory for queued jobs
	RunningDir         string        // Snapshot directory for running jobs
	DoneLogPath        string        // Completed-job record
	ConditionCachePath string        // Stop flag file
	SchedulerDataPath  string        // Resume marker file
	PoolSize           int           // Admission width per tick
	TickInterval       time.Duration // Sleep between ticks
}

// withDefaults fills unset fields with the default values
func (c Config) withDefaults() Config {
	if c.QueuedDir == "" {
		c.QueuedDir = DefaultQueuedDir
	}
	if c.RunningDir == "" {
		c.RunningDir = DefaultRunningDir
	}
	if c.DoneLogPath == "" {
		c.DoneLogPath = DefaultDoneLogPath
	}
	if c.ConditionCachePath == "" {
		c.ConditionCachePath = DefaultConditionCache
	}
	if c.SchedulerDataPath == "" {
		c.SchedulerDataPath = DefaultSchedulerDataPath
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Option customises scheduler construction
type Option func(*Scheduler)

// WithClock substitutes the time source (tests)
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = collector
	}
}

// ============================================================================
// Scheduler
// ============================================================================

// Scheduler drives a bounded pool of cooperatively-suspendable jobs
type Scheduler struct {
	cfg     Config
	clock   Clock
	metrics *metrics.Collector // Optional, nil when not attached

	tasks   []job.Task      // Ready queue, FIFO with requeue-to-tail
	running []*job.Iterator // Running set, stepped in insertion order

	done      *donelog.Log
	store     *snapshot.Store
	stopFlag  *controlfile.StopFlag
	schedData *controlfile.SchedulerData
}

// New creates a scheduler over the configured paths.
//
// If the resume marker exists this is a continuation of a stopped run:
// the ready queue and the running set are rebuilt from the snapshot
// directories and the done log is kept intact. Otherwise it is a fresh
// run and the done log is truncated to empty.
//
// Returns:
//   - *Scheduler: Scheduler instance
//   - error: Resume or initialisation error
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:       cfg,
		clock:     SystemClock(),
		done:      donelog.New(cfg.DoneLogPath),
		store:     snapshot.NewStore(cfg.QueuedDir, cfg.RunningDir),
		stopFlag:  controlfile.NewStopFlag(cfg.ConditionCachePath),
		schedData: controlfile.NewSchedulerData(cfg.SchedulerDataPath),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.store.InitDirs()

	if s.schedData.Exists() {
		if err := s.resume(); err != nil {
			return nil, err
		}
	} else {
		if err := s.done.Truncate(); err != nil {
			return nil, err
		}
		log.Info("Created empty done log", "path", cfg.DoneLogPath)
	}

	return s, nil
}

// resume rebuilds both job sets from the snapshot directories
func (s *Scheduler) resume() error {
	start := time.Now()
	log.Info("Resume marker found, restoring from snapshots", "path", s.schedData.Path())

	queued, err := s.store.LoadAll(snapshot.RoleQueued)
	if err != nil {
		return fmt.Errorf("failed to restore queued tasks: %w", err)
	}
	runningTasks, err := s.store.LoadAll(snapshot.RoleRunning)
	if err != nil {
		return fmt.Errorf("failed to restore running tasks: %w", err)
	}

	s.tasks = queued
	// Mid-stage progress is lost; completed-stage markers inside each task
	// make the fresh iterator skip finished stages.
	for _, t := range runningTasks {
		s.running = append(s.running, job.NewIterator(t))
	}

	if s.metrics != nil {
		s.metrics.SetRecoveryTime(time.Since(start).Seconds())
	}
	log.Info("Restore complete",
		"queued", len(s.tasks),
		"running", len(s.running),
		"duration", time.Since(start))
	return nil
}

// Schedule appends a job to the tail of the ready queue
func (s *Scheduler) Schedule(t job.Task) {
	s.tasks = append(s.tasks, t)
	if s.metrics != nil {
		s.metrics.RecordScheduled()
	}
	log.Debug("Task scheduled", "id", t.Meta().ID, "kind", t.Kind())
}

// Run drives the loop until both job sets drain or a stop is requested.
//
// A drain deletes the snapshot files and the control files. A stop
// (flag file flipped to false, or ctx cancelled) checkpoints every
// unfinished job instead and leaves the resume marker behind.
func (s *Scheduler) Run(ctx context.Context) error {
	for len(s.tasks) > 0 || len(s.running) > 0 {
		if err := s.tick(ctx); err != nil {
			if errors.Is(err, ErrStopRequested) || errors.Is(err, ErrInterrupted) {
				log.Info("Stop signal received", "reason", err)
				return s.Stop(true)
			}
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("Context cancelled during quiescent sleep")
			return s.Stop(true)
		case <-time.After(s.cfg.TickInterval):
		}
	}

	log.Info("All tasks drained, cleaning up control files")
	return s.cleanup()
}

// tick performs one admission phase and one execution phase
func (s *Scheduler) tick(ctx context.Context) error {
	s.admit()

	// Snapshot of the running set: retries replace entries in place and
	// completions shrink the live slice while we walk this copy.
	batch := make([]*job.Iterator, len(s.running))
	copy(batch, s.running)

	for _, it := range batch {
		running, err := s.stopFlag.IsRunning()
		if err != nil {
			// An unreadable flag must not kill the run; keep stepping.
			log.Error("Failed to read stop flag", "error", err)
		} else if !running {
			return ErrStopRequested
		}

		select {
		case <-ctx.Done():
			return ErrInterrupted
		default:
		}

		s.step(it)
	}

	if s.metrics != nil {
		s.metrics.UpdateQueueStats(len(s.tasks), len(s.running))
	}
	return nil
}

// admit pops up to PoolSize jobs from the ready queue and materialises
// iterators for the admissible ones. Examining at most PoolSize jobs per
// tick bounds tick latency regardless of queue length.
func (s *Scheduler) admit() {
	n := s.cfg.PoolSize
	if len(s.tasks) < n {
		n = len(s.tasks)
	}

	for i := 0; i < n; i++ {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		meta := t.Meta()

		if meta.StartAt.After(s.clock.Now()) {
			log.Info("Scheduled start not reached, requeueing", "id", meta.ID)
			s.tasks = append(s.tasks, t)
			continue
		}

		satisfied, err := s.done.ContainsAll(meta.Dependencies)
		if err != nil {
			log.Error("Failed to check dependencies, requeueing", "id", meta.ID, "error", err)
			s.tasks = append(s.tasks, t)
			continue
		}
		if !satisfied {
			log.Info("Dependencies not yet completed, requeueing", "id", meta.ID)
			s.tasks = append(s.tasks, t)
			continue
		}

		s.running = append(s.running, job.NewIterator(t))
		if s.metrics != nil {
			s.metrics.RecordAdmitted()
		}
		log.Debug("Task admitted", "id", meta.ID, "kind", t.Kind())
	}
}

// step advances one iterator and classifies the outcome
func (s *Scheduler) step(it *job.Iterator) {
	meta := it.Task().Meta()

	outcome, err := it.Next()
	if err != nil {
		log.Error("Unexpected task failure, dropping",
			"id", meta.ID,
			"kind", it.Task().Kind(),
			"step", it.Steps(),
			"error", err)
		s.remove(it)
		if s.metrics != nil {
			s.metrics.RecordFailed()
		}
		return
	}

	switch outcome {
	case types.StepExhausted:
		// Done-log append happens strictly before running-set removal:
		// dependents must never observe the job gone but unrecorded.
		if appendErr := s.done.Append(meta.ID); appendErr != nil {
			log.Error("Failed to record completion", "id", meta.ID, "error", appendErr)
		}
		s.remove(it)
		if s.metrics != nil {
			s.metrics.RecordCompleted()
		}
		log.Debug("Task completed", "id", meta.ID, "tries", meta.Tries)

	case types.StepRetry:
		if meta.RetriesLeft() {
			meta.Tries++
			log.Debug("Retrying task", "id", meta.ID, "tries", meta.Tries, "max_tries", meta.MaxTries)
			it.Task().Reset()
			s.replace(it, job.NewIterator(it.Task()))
			if s.metrics != nil {
				s.metrics.RecordRetried()
			}
		} else {
			log.Warn("Retry budget exhausted, abandoning task", "id", meta.ID, "tries", meta.Tries)
			s.remove(it)
			if s.metrics != nil {
				s.metrics.RecordAbandoned()
			}
		}

	case types.StepProgress:
		if meta.Expired(s.clock.Now()) {
			log.Warn("Working time budget exceeded, dropping task", "id", meta.ID)
			s.remove(it)
			if s.metrics != nil {
				s.metrics.RecordTimedOut()
			}
		}
	}
}

// remove deletes an iterator from the running set, preserving order
func (s *Scheduler) remove(it *job.Iterator) {
	for i, cur := range s.running {
		if cur == it {
			s.running = append(s.running[:i], s.running[i+1:]...)
			return
		}
	}
}

// replace swaps an iterator for a fresh one in place, preserving order
func (s *Scheduler) replace(old, fresh *job.Iterator) {
	for i, cur := range s.running {
		if cur == old {
			s.running[i] = fresh
			return
		}
	}
}

// Stop checkpoints every unfinished job and writes the resume marker.
// With saveData false nothing is persisted; the jobs are simply dropped
// and the next construction starts fresh.
func (s *Scheduler) Stop(saveData bool) error {
	if !saveData {
		log.Info("Stopping without saving", "queued", len(s.tasks), "running", len(s.running))
		// A marker left by an earlier checkpoint would make the next
		// construction resume; drop it so the next run is fresh.
		return s.schedData.Remove()
	}

	start := time.Now()

	// Files from an earlier checkpoint may name jobs that have since
	// completed or changed role; start from empty directories.
	if err := s.store.Purge(); err != nil {
		return err
	}

	for _, t := range s.tasks {
		if err := s.store.Save(t, snapshot.RoleQueued); err != nil {
			return fmt.Errorf("failed to checkpoint queued task %s: %w", t.Meta().ID, err)
		}
	}
	log.Info("Queued tasks saved", "count", len(s.tasks))

	for _, it := range s.running {
		if err := s.store.Save(it.Task(), snapshot.RoleRunning); err != nil {
			return fmt.Errorf("failed to checkpoint running task %s: %w", it.Task().Meta().ID, err)
		}
	}
	log.Info("Running tasks saved", "count", len(s.running))

	if err := s.schedData.Write(len(s.tasks), len(s.running)); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.SetCheckpointDuration(time.Since(start).Seconds())
	}
	return nil
}

// Restart checkpoints the current state and immediately resumes the loop
func (s *Scheduler) Restart(ctx context.Context) error {
	if err := s.Stop(true); err != nil {
		return err
	}
	return s.Run(ctx)
}

// cleanup removes snapshot files and transient control files after drain
func (s *Scheduler) cleanup() error {
	if err := s.store.Purge(); err != nil {
		return err
	}
	if err := s.stopFlag.Remove(); err != nil {
		return err
	}
	return s.schedData.Remove()
}

// Stats reports current queue sizes (for the status command and tests)
func (s *Scheduler) Stats() map[string]int {
	return map[string]int{
		"queued":  len(s.tasks),
		"running": len(s.running),
	}
}
