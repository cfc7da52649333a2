// Package daemon tracks the long running openet process of a project.
//
// run and watch hold a pid file under .openet so two processes never write
// the same task states, and so `openet stop` can find a running watch.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/process"
)

// PIDFileName is the pid file inside the project's .openet directory
const PIDFileName = "openet.pid"

// Status describes the process holding the project
type Status struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	RunID     string    `json:"runId,omitempty"`
	StartTime time.Time `json:"startTime"`
}

// Manager acquires and inspects the project pid file
type Manager struct {
	pidFile string
	logger  logger.Logger

	mu   sync.Mutex
	held bool
}

// NewManager creates a manager for projectRoot
func NewManager(projectRoot string, log logger.Logger) *Manager {
	return &Manager{
		pidFile: filepath.Join(projectRoot, ".openet", PIDFileName),
		logger:  logger.OrNop(log),
	}
}

// PIDFile returns the pid file path
func (m *Manager) PIDFile() string {
	return m.pidFile
}

// Acquire records this process as the project owner. A pid file left by a
// process that no longer exists is replaced.
func (m *Manager) Acquire(command, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return ErrAlreadyRunning
	}
	if status, err := m.read(); err == nil {
		if process.Alive(status.PID) {
			return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, status.Command, status.PID)
		}
		m.logger.Warn("Replacing stale pid file", logger.WithField("pid", status.PID))
	}

	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.Marshal(Status{
		PID:       os.Getpid(),
		Command:   command,
		RunID:     runID,
		StartTime: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.pidFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	m.held = true
	return nil
}

// Release removes the pid file if this manager wrote it
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return
	}
	m.held = false
	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove pid file", logger.WithField("error", err))
	}
}

// Status returns the live process holding the project, or nil
func (m *Manager) Status() (*Status, error) {
	status, err := m.read()
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !process.Alive(status.PID) {
		return nil, nil
	}
	return status, nil
}

// Stop terminates the process holding the project and removes its pid file
func (m *Manager) Stop(ctx context.Context) (*Status, error) {
	status, err := m.Status()
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrNotRunning
	}
	if status.PID == os.Getpid() {
		return nil, fmt.Errorf("refusing to stop the current process")
	}

	m.logger.Info("Stopping openet process",
		logger.WithField("pid", status.PID),
		logger.WithField("command", status.Command))
	if err := process.Terminate(ctx, status.PID); err != nil {
		return status, fmt.Errorf("stop pid %d: %w", status.PID, err)
	}
	// A process killed before its deferred Release leaves the file behind
	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		return status, err
	}
	return status, nil
}

func (m *Manager) read() (*Status, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("invalid pid file %s: %w", m.pidFile, err)
	}
	return &status, nil
}
