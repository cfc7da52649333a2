// Package mocks provides hand-written test doubles for the interfaces package
package mocks

import (
	"sync"
	"time"

	"github.com/openet/core/pkg/interfaces"
	"github.com/openet/core/pkg/types"
)

var (
	_ interfaces.Notifier      = (*MockNotifier)(nil)
	_ interfaces.StateRecorder = (*MockStateRecorder)(nil)
)

// MockNotifier records notifications
type MockNotifier struct {
	mu       sync.Mutex
	Starts   []string
	Success  []string
	Failures []string
	Runs     []RunSummary
}

// RunSummary is one NotifyRunComplete call
type RunSummary struct {
	Completed int
	Failed    int
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// NotifyTaskStart records a task start
func (m *MockNotifier) NotifyTaskStart(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Starts = append(m.Starts, task)
}

// NotifyTaskSuccess records a task success
func (m *MockNotifier) NotifyTaskSuccess(task string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = append(m.Success, task)
}

// NotifyTaskFailure records a task failure
func (m *MockNotifier) NotifyTaskFailure(task string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, task)
}

// NotifyRunComplete records a run summary
func (m *MockNotifier) NotifyRunComplete(completed, failed int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, RunSummary{Completed: completed, Failed: failed})
}

// Snapshot returns copies of the recorded task names
func (m *MockNotifier) Snapshot() (starts, success, failures []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Starts...),
		append([]string(nil), m.Success...),
		append([]string(nil), m.Failures...)
}

// MockStateRecorder keeps task results in memory
type MockStateRecorder struct {
	mu      sync.Mutex
	results []types.TaskResult
	err     error
}

// NewMockStateRecorder creates a new mock state recorder
func NewMockStateRecorder() *MockStateRecorder {
	return &MockStateRecorder{}
}

// RecordTask stores the result
func (m *MockStateRecorder) RecordTask(result types.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, result)
	return nil
}

// SetError makes RecordTask fail with err
func (m *MockStateRecorder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Results returns every recorded result in order
func (m *MockStateRecorder) Results() []types.TaskResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.TaskResult(nil), m.results...)
}

// Last returns the most recent result for task
func (m *MockStateRecorder) Last(task string) (types.TaskResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].Task == task {
			return m.results[i], true
		}
	}
	return types.TaskResult{}, false
}
