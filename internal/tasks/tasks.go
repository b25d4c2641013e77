// ============================================================================
// Stagerunner Example Tasks - Filesystem and HTTP Job Bodies
// ============================================================================
//
// Package: internal/tasks
// File: tasks.go
// Purpose: Ready-made multi-stage tasks driving the scheduler in the demo
//
// Each task works through a list of items, one item per stage, and keeps
// the remaining list as its serialisable state. Reset restores the full
// list for a retry; a snapshot taken mid-list resumes with only the
// unprocessed items.
//
// Task kinds register themselves in init() so snapshots can be decoded
// back into concrete tasks after a process restart.
//
// ============================================================================

package tasks

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kiselas/stagerunner/internal/job"
	"github.com/kiselas/stagerunner/pkg/types"
)

var log = slog.Default()

// Task kind registry keys
const (
	KindMkdir  = "tasks.mkdir"
	KindTouch  = "tasks.touch"
	KindFetch  = "tasks.fetch"
	KindStaged = "tasks.staged"
)

func init() {
	job.Register(KindMkdir, func() job.Task { return &MkdirTask{} })
	job.Register(KindTouch, func() job.Task { return &TouchTask{} })
	job.Register(KindFetch, func() job.Task { return &FetchTask{} })
	job.Register(KindStaged, func() job.Task { return &StagedTask{} })
}

// Base carries the scheduling metadata shared by all task kinds
type Base struct {
	meta types.JobMeta
}

// NewBase builds metadata with a generated ID and default gates
func NewBase() Base {
	return Base{meta: types.NewJobMeta()}
}

// Meta returns the task's scheduling metadata
func (b *Base) Meta() *types.JobMeta {
	return &b.meta
}

// ============================================================================
// MkdirTask - creates one directory per stage
// ============================================================================

// MkdirTask creates a list of directories, one per stage
type MkdirTask struct {
	Base
	Pending []string // Directories still to create
	All     []string // Full list, restored on Reset
}

// NewMkdirTask builds a mkdir task over the given directories
func NewMkdirTask(dirs []string) *MkdirTask {
	return &MkdirTask{
		Base:    NewBase(),
		Pending: append([]string(nil), dirs...),
		All:     append([]string(nil), dirs...),
	}
}

func (t *MkdirTask) Kind() string { return KindMkdir }

// Advance creates the next directory
func (t *MkdirTask) Advance() (types.StepOutcome, error) {
	if len(t.Pending) == 0 {
		return types.StepExhausted, nil
	}

	dir := t.Pending[len(t.Pending)-1]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	t.Pending = t.Pending[:len(t.Pending)-1]
	log.Info("Created directory", "dir", dir)
	return types.StepProgress, nil
}

// Reset restores the full directory list
func (t *MkdirTask) Reset() {
	t.Pending = append([]string(nil), t.All...)
}

type mkdirState struct {
	Pending []string `json:"pending"`
	All     []string `json:"all"`
}

func (t *MkdirTask) MarshalState() ([]byte, error) {
	return json.Marshal(mkdirState{Pending: t.Pending, All: t.All})
}

func (t *MkdirTask) UnmarshalState(data []byte) error {
	var s mkdirState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Pending, t.All = s.Pending, s.All
	return nil
}

// ============================================================================
// TouchTask - creates one marker file per stage
// ============================================================================

// TouchTask creates an empty marker file in each directory, one per stage.
// Typically depends on a MkdirTask covering the same directories.
type TouchTask struct {
	Base
	Pending  []string // Directories still to touch
	All      []string // Full list, restored on Reset
	FileName string   // Marker file name
}

// NewTouchTask builds a touch task over the given directories
func NewTouchTask(dirs []string) *TouchTask {
	return &TouchTask{
		Base:     NewBase(),
		Pending:  append([]string(nil), dirs...),
		All:      append([]string(nil), dirs...),
		FileName: "testfile.txt",
	}
}

func (t *TouchTask) Kind() string { return KindTouch }

// Advance creates the next marker file
func (t *TouchTask) Advance() (types.StepOutcome, error) {
	if len(t.Pending) == 0 {
		return types.StepExhausted, nil
	}

	dir := t.Pending[len(t.Pending)-1]
	path := filepath.Join(dir, t.FileName)
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", path, err)
	}
	f.Close()
	t.Pending = t.Pending[:len(t.Pending)-1]
	log.Info("Created file", "path", path)
	return types.StepProgress, nil
}

// Reset restores the full directory list
func (t *TouchTask) Reset() {
	t.Pending = append([]string(nil), t.All...)
}

type touchState struct {
	Pending  []string `json:"pending"`
	All      []string `json:"all"`
	FileName string   `json:"file_name"`
}

func (t *TouchTask) MarshalState() ([]byte, error) {
	return json.Marshal(touchState{Pending: t.Pending, All: t.All, FileName: t.FileName})
}

func (t *TouchTask) UnmarshalState(data []byte) error {
	var s touchState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Pending, t.All, t.FileName = s.Pending, s.All, s.FileName
	return nil
}

// ============================================================================
// FetchTask - downloads one web page per stage
// ============================================================================

// FetchTask downloads a list of URLs, one per stage, writing each response
// body to <host>_<unix>.txt in OutDir. Network failures signal a retry so
// a transient outage restarts the list instead of killing the job.
type FetchTask struct {
	Base
	Pending []string // URLs still to fetch
	All     []string // Full list, restored on Reset
	OutDir  string   // Target directory for response files

	client *http.Client
}

// NewFetchTask builds a fetch task over the given URLs
func NewFetchTask(urls []string, outDir string) *FetchTask {
	return &FetchTask{
		Base:    NewBase(),
		Pending: append([]string(nil), urls...),
		All:     append([]string(nil), urls...),
		OutDir:  outDir,
	}
}

func (t *FetchTask) Kind() string { return KindFetch }

func (t *FetchTask) httpClient() *http.Client {
	if t.client == nil {
		t.client = &http.Client{Timeout: 10 * time.Second}
	}
	return t.client
}

// Advance downloads the next URL
func (t *FetchTask) Advance() (types.StepOutcome, error) {
	if len(t.Pending) == 0 {
		return types.StepExhausted, nil
	}

	rawURL := t.Pending[len(t.Pending)-1]

	resp, err := t.httpClient().Get(rawURL)
	if err != nil {
		log.Warn("Fetch failed, requesting retry", "url", rawURL, "error", err)
		return types.StepRetry, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("Read failed, requesting retry", "url", rawURL, "error", err)
		return types.StepRetry, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse url %s: %w", rawURL, err)
	}

	name := fmt.Sprintf("%s_%d.txt", parsed.Host, time.Now().Unix())
	path := filepath.Join(t.OutDir, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	t.Pending = t.Pending[:len(t.Pending)-1]
	log.Info("Saved page", "url", rawURL, "path", path)
	return types.StepProgress, nil
}

// Reset restores the full URL list
func (t *FetchTask) Reset() {
	t.Pending = append([]string(nil), t.All...)
}

type fetchState struct {
	Pending []string `json:"pending"`
	All     []string `json:"all"`
	OutDir  string   `json:"out_dir"`
}

func (t *FetchTask) MarshalState() ([]byte, error) {
	return json.Marshal(fetchState{Pending: t.Pending, All: t.All, OutDir: t.OutDir})
}

func (t *FetchTask) UnmarshalState(data []byte) error {
	var s fetchState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Pending, t.All, t.OutDir = s.Pending, s.All, s.OutDir
	return nil
}
