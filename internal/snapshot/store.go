// ============================================================================
// Stagerunner Snapshot Store - Per-Job State Persistence
// ============================================================================
//
// Package: internal/snapshot
// File: store.go
// Purpose: Serialise unfinished jobs to disk so a fresh process can resume
//
// Layout:
//   Two directories, one per scheduler role:
//     queued/   jobs still waiting in the ready queue at checkpoint
//     running/  jobs that owned a stage iterator at checkpoint
//   Each unfinished job becomes exactly one JSON file named by its
//   identifier. After a graceful stop the union of both directories equals
//   the set of unfinished jobs.
//
// Atomic Writes:
//   To prevent corruption from mid-write crashes:
//   1. Write to temp file <id>.json.tmp
//   2. Call os.Rename() when complete
//   3. os.Rename() is atomic (POSIX guarantee)
//   4. Ensures each snapshot file is either complete or non-existent
//
// Data Format:
//   Indented JSON snapshot envelope:
//   {
//     "schema_ver": 1,
//     "kind": "tasks.mkdir",
//     "meta": { ... scheduling metadata ... },
//     "state": { ... task body markers ... }
//   }
//
// Error Handling:
//   - ErrCorruptedSnapshot: JSON parse failure on load
//   - ErrIncompatibleVersion: schema version mismatch
//   Mid-stage progress is lost on resume by design; completed-stage
//   markers inside the task state preserve progress at stage granularity.
//
// ============================================================================

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiselas/stagerunner/internal/job"
	"github.com/kiselas/stagerunner/pkg/types"
)

var log = slog.Default()

// ============================================================================
// Error Definitions
// ============================================================================

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

// Role selects which snapshot directory a job belongs to
type Role string

// Snapshot roles
const (
	RoleQueued  Role = "queued"  // Job was waiting in the ready queue
	RoleRunning Role = "running" // Job owned a stage iterator
)

// Store persists unfinished jobs into role directories
type Store struct {
	queuedDir  string
	runningDir string
}

// NewStore creates a snapshot store over the two role directories
func NewStore(queuedDir, runningDir string) *Store {
	return &Store{
		queuedDir:  queuedDir,
		runningDir: runningDir,
	}
}

// InitDirs creates the snapshot directories if missing.
// Permission failures are logged and swallowed: the scheduler keeps
// running and a later Save fails visibly instead.
func (s *Store) InitDirs() {
	for _, dir := range []string{s.queuedDir, s.runningDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("Failed to create snapshot directory", "dir", dir, "error", err)
		}
	}
}

// Save serialises one task into its role directory
//
// Parameters:
//   - t: task to persist
//   - role: RoleQueued or RoleRunning
//
// Returns:
//   - error: Error on encode or write failure
func (s *Store) Save(t job.Task, role Role) error {
	env, err := job.Encode(t)
	if err != nil {
		return err
	}

	jsonBytes, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", env.Meta.ID, err)
	}

	path := s.filePath(env.Meta.ID, role)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot for %s: %w", env.Meta.ID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot for %s: %w", env.Meta.ID, err)
	}
	return nil
}

// LoadAll reconstructs every task persisted under the given role.
// Files are visited in lexical order so resume order is deterministic.
func (s *Store) LoadAll(role Role) ([]job.Task, error) {
	dir := s.dirFor(role)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	var tasks []job.Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		t, err := s.loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	log.Info("Restored tasks from snapshot directory", "dir", dir, "count", len(tasks))
	return tasks, nil
}

// Purge deletes every snapshot file in both role directories
func (s *Store) Purge() error {
	for _, dir := range []string{s.queuedDir, s.runningDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove snapshot file %s: %w", entry.Name(), err)
			}
		}
		log.Info("Deleted snapshot files", "dir", dir)
	}
	return nil
}

// loadFile decodes one snapshot file back into a task
func (s *Store) loadFile(path string) (job.Task, error) {
	jsonBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var env types.SnapshotEnvelope
	if err := json.Unmarshal(jsonBytes, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptedSnapshot, path, err)
	}
	if env.SchemaVer != 1 {
		return nil, fmt.Errorf("%w: got %d, want 1", ErrIncompatibleVersion, env.SchemaVer)
	}

	return job.Decode(env)
}

func (s *Store) dirFor(role Role) string {
	if role == RoleRunning {
		return s.runningDir
	}
	return s.queuedDir
}

func (s *Store) filePath(id types.JobID, role Role) string {
	return filepath.Join(s.dirFor(role), string(id)+".json")
}
