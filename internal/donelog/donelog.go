// ============================================================================
// Stagerunner Done-Log - Completed Job Record
// ============================================================================
//
// Package: internal/donelog
// File: donelog.go
// Purpose: Append-only record of completed job identifiers
//
// The done-log is the authoritative answer to "has this job completed?".
// Dependency checks read the file fresh on every call; the file on disk,
// not any in-memory cache, is the source of truth, so an external process
// appending to it is observed immediately.
//
// Format:
//   UTF-8 text, one identifier per line, LF-terminated. Each append is a
//   single write syscall of identifier + terminator, so concurrent readers
//   never observe a torn line.
//
// Lifecycle:
//   A fresh scheduler run truncates the log to empty. A resumed run keeps
//   it intact, since completed work must stay visible to dependents that
//   survived the restart.
//
// ============================================================================

package donelog

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kiselas/stagerunner/pkg/types"
)

// Log is an append-only completed-job record backed by one text file
type Log struct {
	path string
}

// New creates a done-log handle for the given path. The file itself is
// created by Truncate on a fresh run or lazily by the first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file path
func (l *Log) Path() string {
	return l.path
}

// Truncate recreates the log as an empty file
func (l *Log) Truncate() error {
	if err := os.WriteFile(l.path, nil, 0644); err != nil {
		return fmt.Errorf("failed to truncate done log: %w", err)
	}
	return nil
}

// Append records a completed job identifier.
// Identifier and newline go out in one Write call so external readers
// never see a partial line.
func (l *Log) Append(id types.JobID) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open done log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(string(id) + "\n")); err != nil {
		return fmt.Errorf("failed to append to done log: %w", err)
	}
	return nil
}

// Contains reports whether the identifier appears in the log.
// Reads the file fresh on every call.
func (l *Log) Contains(id types.JobID) (bool, error) {
	ids, err := l.read()
	if err != nil {
		return false, err
	}
	_, ok := ids[id]
	return ok, nil
}

// ContainsAll reports whether every identifier appears in the log.
// An empty list is trivially satisfied.
func (l *Log) ContainsAll(ids []types.JobID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	done, err := l.read()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if _, ok := done[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Count returns the number of recorded identifiers
func (l *Log) Count() (int, error) {
	ids, err := l.read()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// read loads the full identifier set from disk. A missing file reads as
// empty, matching a run where nothing has completed yet.
func (l *Log) read() (map[types.JobID]struct{}, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[types.JobID]struct{}{}, nil
		}
		return nil, fmt.Errorf("failed to read done log: %w", err)
	}
	defer f.Close()

	ids := make(map[types.JobID]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids[types.JobID(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan done log: %w", err)
	}
	return ids, nil
}
