// Package state persists export task state under the project root
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/types"
)

// DefaultHeartbeatInterval is how often running task states are touched
const DefaultHeartbeatInterval = 10 * time.Second

// staleAfter marks a running state as abandoned when its heartbeat is older
const staleAfter = 30 * time.Second

// TaskState represents the persistent state of one export task
type TaskState struct {
	Task      string           `json:"task"`
	RunID     string           `json:"runId"`
	Status    types.TaskStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"lastError,omitempty"`
	Duration  time.Duration    `json:"duration,omitempty"`
	OutputKey string           `json:"outputKey,omitempty"`
	ProcessID int              `json:"processId"`
	Heartbeat time.Time        `json:"heartbeat"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Completed int              `json:"completedCount"`
	Failed    int              `json:"failedCount"`
}

// Stale reports whether a running task lost its owning process
func (s *TaskState) Stale(now time.Time) bool {
	return !s.Status.Done() && now.Sub(s.Heartbeat) > staleAfter
}

// StateManager handles persistent state files
type StateManager struct {
	stateDir string
	logger   logger.Logger
	interval time.Duration

	mu     sync.RWMutex
	states map[string]*TaskState

	hbMu     sync.Mutex
	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// NewStateManager creates a state manager writing to <root>/.openet/state
func NewStateManager(projectRoot string, log logger.Logger) *StateManager {
	return &StateManager{
		stateDir: filepath.Join(projectRoot, ".openet", "state"),
		logger:   logger.OrNop(log),
		interval: DefaultHeartbeatInterval,
		states:   make(map[string]*TaskState),
	}
}

// StateDir returns the directory holding the state files
func (sm *StateManager) StateDir() string {
	return sm.stateDir
}

// SetHeartbeatInterval changes the heartbeat period before StartHeartbeat
func (sm *StateManager) SetHeartbeatInterval(d time.Duration) {
	sm.hbMu.Lock()
	defer sm.hbMu.Unlock()
	sm.interval = d
}

// RecordTask merges a task result into its state file
func (sm *StateManager) RecordTask(result types.TaskResult) error {
	if result.Task == "" {
		return fmt.Errorf("task name is empty")
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, ok := sm.states[result.Task]
	if !ok {
		state = &TaskState{Task: result.Task}
		// Keep counters from earlier runs
		if existing, err := sm.loadStateFile(result.Task); err == nil {
			state.Completed = existing.Completed
			state.Failed = existing.Failed
		}
		sm.states[result.Task] = state
	}

	now := time.Now()
	prev := state.Status
	state.RunID = result.RunID
	state.Status = result.Status
	state.Attempts = result.Attempts
	state.LastError = result.Error
	state.OutputKey = result.OutputKey
	state.ProcessID = os.Getpid()
	state.Heartbeat = now
	state.UpdatedAt = now
	if result.Duration > 0 {
		state.Duration = result.Duration
	}
	if prev != result.Status {
		switch result.Status {
		case types.TaskStatusCompleted:
			state.Completed++
		case types.TaskStatusFailed:
			state.Failed++
		}
	}
	return sm.saveStateFile(state)
}

// ReadState reads the state for a task
func (sm *StateManager) ReadState(task string) (*TaskState, error) {
	sm.mu.RLock()
	if state, ok := sm.states[task]; ok {
		copied := *state
		sm.mu.RUnlock()
		return &copied, nil
	}
	sm.mu.RUnlock()
	return sm.loadStateFile(task)
}

// RemoveState removes the state for a task
func (sm *StateManager) RemoveState(task string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, task)
	if err := os.Remove(sm.getStateFilePath(task)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// DiscoverStates loads every state file, sorted by task name
func (sm *StateManager) DiscoverStates() ([]*TaskState, error) {
	files, err := os.ReadDir(sm.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*TaskState
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sm.stateDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read state file: %w", err)
		}
		var state TaskState
		if err := json.Unmarshal(data, &state); err != nil {
			sm.logger.Warn("Failed to load state file",
				logger.WithField("file", name),
				logger.WithField("error", err))
			continue
		}
		states = append(states, &state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Task < states[j].Task })
	return states, nil
}

// StartHeartbeat refreshes the heartbeat of unfinished tasks until ctx ends
// or StopHeartbeat is called
func (sm *StateManager) StartHeartbeat(ctx context.Context) {
	sm.hbMu.Lock()
	defer sm.hbMu.Unlock()

	if sm.hbCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	sm.hbCancel = cancel
	sm.hbDone = done
	interval := sm.interval

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.updateHeartbeats()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat goroutine and waits for it
func (sm *StateManager) StopHeartbeat() {
	sm.hbMu.Lock()
	cancel, done := sm.hbCancel, sm.hbDone
	sm.hbCancel, sm.hbDone = nil, nil
	sm.hbMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Cleanup stops the heartbeat and marks interrupted tasks as pending
func (sm *StateManager) Cleanup() error {
	sm.StopHeartbeat()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, state := range sm.states {
		if state.Status.Done() {
			continue
		}
		state.Status = types.TaskStatusPending
		state.ProcessID = 0
		if err := sm.saveStateFile(state); err != nil {
			sm.logger.Warn("Failed to save final state",
				logger.WithField("task", state.Task),
				logger.WithField("error", err))
		}
	}
	return nil
}

// Private methods

// fileName flattens task names like "10S/201607" into one path element
func fileName(task string) string {
	return strings.ReplaceAll(filepath.ToSlash(task), "/", "_") + ".json"
}

func (sm *StateManager) getStateFilePath(task string) string {
	return filepath.Join(sm.stateDir, fileName(task))
}

func (sm *StateManager) loadStateFile(task string) (*TaskState, error) {
	data, err := os.ReadFile(sm.getStateFilePath(task))
	if err != nil {
		return nil, err
	}

	var state TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

func (sm *StateManager) saveStateFile(state *TaskState) error {
	if err := os.MkdirAll(sm.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	stateFile := sm.getStateFilePath(state.Task)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically
	tempFile := stateFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tempFile, stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

func (sm *StateManager) updateHeartbeats() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for _, state := range sm.states {
		if state.Status.Done() {
			continue
		}
		state.Heartbeat = now
		if err := sm.saveStateFile(state); err != nil {
			sm.logger.Debug("Failed to update heartbeat",
				logger.WithField("task", state.Task),
				logger.WithField("error", err))
		}
	}
}
