package engine

import (
	"sync"
	"time"

	"github.com/openet/core/internal/state"
	"github.com/openet/core/pkg/logger"
)

// Recent periods keep a priority boost for this long
const recencyWindow = 365 * 24 * time.Hour

// PriorityEngine orders export tasks. Recent periods come first so near real
// time outputs refresh early; tasks that keep failing sink to the back.
type PriorityEngine struct {
	logger  logger.Logger
	metrics map[string]*taskMetrics
	now     func() time.Time
	mu      sync.RWMutex
}

type taskMetrics struct {
	lastDuration time.Duration
	total        int
	successful   int
}

// NewPriorityEngine creates an engine with no task history
func NewPriorityEngine(log logger.Logger) *PriorityEngine {
	return &PriorityEngine{
		logger:  logger.OrNop(log),
		metrics: make(map[string]*taskMetrics),
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (e *PriorityEngine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Load seeds task history from persisted states
func (e *PriorityEngine) Load(states []*state.TaskState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range states {
		e.metrics[s.Task] = &taskMetrics{
			lastDuration: s.Duration,
			total:        s.Completed + s.Failed,
			successful:   s.Completed,
		}
	}
	e.logger.Debug("Loaded task history", logger.WithField("tasks", len(states)))
}

// CalculatePriority scores a task whose output period starts at periodStart.
// Scores range from 0 to 100.
func (e *PriorityEngine) CalculatePriority(task string, periodStart time.Time) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	priority := 50.0

	// Factor 1: recent periods
	age := e.now().Sub(periodStart)
	switch {
	case age <= 0:
		priority += 30
	case age < recencyWindow:
		priority += 30 * (1 - float64(age)/float64(recencyWindow))
	}

	metrics, ok := e.metrics[task]
	if !ok {
		return clampPriority(priority)
	}

	// Factor 2: success rate scales between 0.5x and 1x
	if metrics.total > 0 {
		rate := float64(metrics.successful) / float64(metrics.total)
		priority *= 0.5 + rate*0.5
	}

	// Factor 3: short tasks first
	if metrics.lastDuration > 0 && metrics.lastDuration < 30*time.Second {
		priority += 10
	} else if metrics.lastDuration > 10*time.Minute {
		priority -= 10
	}

	return clampPriority(priority)
}

// UpdateTaskMetrics records the outcome of a task
func (e *PriorityEngine) UpdateTaskMetrics(task string, duration time.Duration, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics, ok := e.metrics[task]
	if !ok {
		metrics = &taskMetrics{}
		e.metrics[task] = metrics
	}
	metrics.lastDuration = duration
	metrics.total++
	if success {
		metrics.successful++
	}
}

// SuccessRate returns the recorded success rate and whether the task has history
func (e *PriorityEngine) SuccessRate(task string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	metrics, ok := e.metrics[task]
	if !ok || metrics.total == 0 {
		return 0, false
	}
	return float64(metrics.successful) / float64(metrics.total), true
}

func clampPriority(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
