// ============================================================================
// Stagerunner Control Files - Stop Flag and Resume Marker
// ============================================================================
//
// Package: internal/controlfile
// File: controlfile.go
// Purpose: Small on-disk control files shared with external tools
//
// Two files steer the scheduler from outside the process:
//
//   Stop Flag (condition cache):
//     JSON file {"is_running": bool}. The scheduler creates it with true
//     on first access and re-reads it before every running-set step; an
//     external tool rewrites it with false to request a graceful stop.
//
//   Scheduler Data File (resume marker):
//     JSON file {"save_data": bool, "len_queued_tasks", "len_running_tasks"}.
//     Written on checkpoint. Its presence on startup means "resume from
//     snapshots"; the counters are informational.
//
// Writes use the temp-file-plus-rename pattern so an external reader never
// observes a half-written file.
//
// ============================================================================

package controlfile

import (
	"encoding/json"
	"fmt"
	"os"
)

// StopFlag is the polled on-disk boolean requesting a graceful stop
type StopFlag struct {
	path string
}

// stopFlagData is the stop flag wire format
type stopFlagData struct {
	IsRunning bool `json:"is_running"`
}

// NewStopFlag creates a stop-flag handle for the given path
func NewStopFlag(path string) *StopFlag {
	return &StopFlag{path: path}
}

// Path returns the backing file path
func (f *StopFlag) Path() string {
	return f.path
}

// IsRunning reads the flag fresh from disk.
// If the file is absent it is created with {"is_running": true} and true
// is returned, so the first run of a deployment starts unimpeded.
func (f *StopFlag) IsRunning() (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := f.write(stopFlagData{IsRunning: true}); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, fmt.Errorf("failed to read stop flag: %w", err)
	}

	var flag stopFlagData
	if err := json.Unmarshal(data, &flag); err != nil {
		return false, fmt.Errorf("failed to parse stop flag: %w", err)
	}
	return flag.IsRunning, nil
}

// RequestStop rewrites the flag with {"is_running": false}
func (f *StopFlag) RequestStop() error {
	return f.write(stopFlagData{IsRunning: false})
}

// Remove deletes the flag file; a missing file is not an error
func (f *StopFlag) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stop flag: %w", err)
	}
	return nil
}

func (f *StopFlag) write(flag stopFlagData) error {
	return atomicWriteJSON(f.path, flag)
}

// SchedulerData is the resume marker written on checkpoint
type SchedulerData struct {
	path string
}

// SchedulerDataContent is the resume marker wire format. Presence of the
// file is what matters; the counters exist for operators reading it.
type SchedulerDataContent struct {
	SaveData        bool `json:"save_data"`
	LenQueuedTasks  int  `json:"len_queued_tasks"`
	LenRunningTasks int  `json:"len_running_tasks"`
}

// NewSchedulerData creates a resume-marker handle for the given path
func NewSchedulerData(path string) *SchedulerData {
	return &SchedulerData{path: path}
}

// Path returns the backing file path
func (d *SchedulerData) Path() string {
	return d.path
}

// Exists reports whether the marker is present on disk
func (d *SchedulerData) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// Write persists the marker with checkpoint counters
func (d *SchedulerData) Write(queued, running int) error {
	return atomicWriteJSON(d.path, SchedulerDataContent{
		SaveData:        true,
		LenQueuedTasks:  queued,
		LenRunningTasks: running,
	})
}

// Read loads the marker content
func (d *SchedulerData) Read() (SchedulerDataContent, error) {
	var content SchedulerDataContent
	data, err := os.ReadFile(d.path)
	if err != nil {
		return content, fmt.Errorf("failed to read scheduler data: %w", err)
	}
	if err := json.Unmarshal(data, &content); err != nil {
		return content, fmt.Errorf("failed to parse scheduler data: %w", err)
	}
	return content, nil
}

// Remove deletes the marker; a missing file is not an error
func (d *SchedulerData) Remove() error {
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove scheduler data: %w", err)
	}
	return nil
}

// atomicWriteJSON writes JSON through a temp file and rename so readers
// never observe a partial file
func atomicWriteJSON(path string, v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal control file: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp control file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename control file: %w", err)
	}
	return nil
}
