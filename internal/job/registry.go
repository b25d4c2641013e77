// ============================================================================
// Stagerunner Task Registry - Snapshot Reconstruction
// ============================================================================
//
// Package: internal/job
// File: registry.go
// Purpose: Map task kinds to constructors so persisted jobs can be rebuilt
//
// A snapshot envelope names its task kind as a string. On resume the
// registry turns that string back into a concrete task, restores the
// scheduling metadata and hands the body state to UnmarshalState. Task
// packages register their kinds from init().
//
// ============================================================================

package job

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kiselas/stagerunner/pkg/types"
)

var (
	// ErrUnknownKind indicates a snapshot names a task kind nobody registered
	ErrUnknownKind = errors.New("unknown task kind")
	// ErrDuplicateKind indicates a task kind was registered twice
	ErrDuplicateKind = errors.New("task kind already registered")
)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]func() Task
}{factories: make(map[string]func() Task)}

// Register binds a task kind to its constructor. Panics on duplicate
// registration, mirroring the fail-fast behaviour of init-time wiring.
func Register(kind string, factory func() Task) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.factories[kind]; exists {
		panic(fmt.Errorf("%w: %s", ErrDuplicateKind, kind))
	}
	registry.factories[kind] = factory
}

// Decode reconstructs a task from its snapshot envelope
func Decode(env types.SnapshotEnvelope) (Task, error) {
	registry.mu.RLock()
	factory, exists := registry.factories[env.Kind]
	registry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, env.Kind)
	}

	t := factory()
	*t.Meta() = env.Meta
	if len(env.State) > 0 {
		if err := t.UnmarshalState(env.State); err != nil {
			return nil, fmt.Errorf("failed to restore task %s state: %w", env.Meta.ID, err)
		}
	}
	return t, nil
}
