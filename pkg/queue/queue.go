// Package queue runs export tasks in priority order with bounded concurrency
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openet/core/pkg/interfaces"
	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/types"
	"github.com/openet/core/pkg/utils"
)

// ErrDuplicateTask is returned when a task with the same name is already queued
var ErrDuplicateTask = errors.New("task already queued")

// ErrNoRun is returned when a task has no Run function
var ErrNoRun = errors.New("task has no run function")

// Task is one unit of export work
type Task struct {
	ID        string
	Name      string
	Priority  float64
	OutputKey string
	Attempts  int
	Status    types.TaskStatus
	Err       error
	Duration  time.Duration
	Run       func(ctx context.Context) error

	seq uint64
}

// NewTask creates a pending task with a fresh ID
func NewTask(name string, priority float64, run func(ctx context.Context) error) *Task {
	return &Task{
		ID:       uuid.New().String(),
		Name:     name,
		Priority: priority,
		Status:   types.TaskStatusPending,
		Run:      run,
	}
}

// Options configures task execution
type Options struct {
	RunID string
	// Retry is applied to each task. MaxRetries overrides its attempt count
	// when positive.
	Retry      utils.RetryPolicy
	MaxRetries int
	// Delay and MaxReady throttle task starts, in Unit
	Delay    int
	MaxReady int
	Unit     time.Duration

	Notifier interfaces.Notifier
	State    interfaces.StateRecorder
	Logger   logger.Logger
}

// Summary counts the outcome of a Start call
type Summary struct {
	Completed int
	Failed    int
	Duration  time.Duration
}

// TaskQueue orders tasks by priority, then by insertion
type TaskQueue struct {
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	queue   []*Task
	tasks   []*Task
	names   map[string]bool
	started int
	seq     uint64
}

// NewTaskQueue creates an empty queue
func NewTaskQueue(opts Options) *TaskQueue {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = utils.TaskStartPolicy
	}
	if opts.MaxRetries > 0 {
		opts.Retry.MaxAttempts = opts.MaxRetries + 1
	}
	if opts.Unit == 0 {
		opts.Unit = time.Second
	}
	opts.Retry.Unit = opts.Unit
	log := logger.OrNop(opts.Logger)
	opts.Retry.Logger = log
	return &TaskQueue{
		opts:  opts,
		log:   log,
		names: make(map[string]bool),
	}
}

// Enqueue adds a task to the queue
func (q *TaskQueue) Enqueue(task *Task) error {
	if task.Run == nil {
		return fmt.Errorf("%s: %w", task.Name, ErrNoRun)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.names[task.Name] {
		return fmt.Errorf("%s: %w", task.Name, ErrDuplicateTask)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	q.seq++
	task.seq = q.seq
	task.Status = types.TaskStatusPending
	q.names[task.Name] = true
	q.queue = append(q.queue, task)
	q.tasks = append(q.tasks, task)
	q.sortQueue()

	q.log.Debug(fmt.Sprintf("Queued task %s with priority %.2f (queue size: %d)",
		task.Name, task.Priority, len(q.queue)))
	return nil
}

// Dequeue removes and returns the highest priority task
func (q *TaskQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, false
	}
	task := q.queue[0]
	q.queue = q.queue[1:]
	return task, true
}

// Peek returns the highest priority task without removing it
func (q *TaskQueue) Peek() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, false
	}
	return q.queue[0], true
}

// Size returns the number of queued tasks
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// ReadyCount returns the number of started tasks that have not finished
func (q *TaskQueue) ReadyCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// Tasks returns every task enqueued so far, in insertion order
func (q *TaskQueue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Start drains the queue with the given number of workers. Task failures are
// counted in the summary; only cancellation is returned as an error.
func (q *TaskQueue) Start(ctx context.Context, workers int) (Summary, error) {
	if workers < 1 {
		workers = 1
	}
	begin := time.Now()

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				task, ok := q.Dequeue()
				if !ok {
					return nil
				}
				if err := q.execute(ctx, task); err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				mu.Lock()
				if task.Status == types.TaskStatusCompleted {
					summary.Completed++
				} else {
					summary.Failed++
				}
				mu.Unlock()
			}
		})
	}
	err := g.Wait()
	summary.Duration = time.Since(begin)

	q.log.Info(fmt.Sprintf("Processed %d tasks", summary.Completed+summary.Failed),
		logger.WithField("completed", summary.Completed),
		logger.WithField("failed", summary.Failed))
	if q.opts.Notifier != nil && err == nil {
		q.opts.Notifier.NotifyRunComplete(summary.Completed, summary.Failed, summary.Duration)
	}
	return summary, err
}

// Private methods

func (q *TaskQueue) execute(ctx context.Context, task *Task) error {
	// The ready check and the increment share the lock so concurrent
	// workers cannot overshoot MaxReady
	for {
		if err := utils.DelayTask(ctx, q.opts.Delay, q.opts.MaxReady, q.opts.Unit, q); err != nil {
			q.requeue(task)
			return err
		}
		q.mu.Lock()
		if q.opts.MaxReady <= 0 || q.started < q.opts.MaxReady {
			q.started++
			task.Status = types.TaskStatusReady
			q.mu.Unlock()
			break
		}
		q.mu.Unlock()
	}
	defer func() {
		q.mu.Lock()
		q.started--
		q.mu.Unlock()
	}()

	log := q.log.WithTarget(task.Name)
	if q.opts.Notifier != nil {
		q.opts.Notifier.NotifyTaskStart(task.Name)
	}

	start := time.Now()
	err := utils.Retry(ctx, q.opts.Retry, func(ctx context.Context) error {
		q.mu.Lock()
		task.Attempts++
		task.Status = types.TaskStatusRunning
		q.mu.Unlock()
		q.record(task, nil, 0)
		return runSafely(ctx, task)
	})
	duration := time.Since(start)

	if err != nil && ctx.Err() != nil {
		// Canceled tasks go back to pending so a rerun picks them up
		q.mu.Lock()
		task.Status = types.TaskStatusPending
		q.mu.Unlock()
		q.record(task, ctx.Err(), duration)
		return ctx.Err()
	}

	q.mu.Lock()
	task.Duration = duration
	task.Err = err
	if err != nil {
		task.Status = types.TaskStatusFailed
	} else {
		task.Status = types.TaskStatusCompleted
	}
	q.mu.Unlock()
	q.record(task, err, duration)

	if err != nil {
		log.Error("Task failed",
			logger.WithField("attempts", task.Attempts),
			logger.WithField("error", err.Error()))
		if q.opts.Notifier != nil {
			q.opts.Notifier.NotifyTaskFailure(task.Name, err)
		}
		return err
	}

	log.Success("Task completed",
		logger.WithField("duration", duration.Round(time.Millisecond).String()))
	if q.opts.Notifier != nil {
		q.opts.Notifier.NotifyTaskSuccess(task.Name, duration)
	}
	return nil
}

func runSafely(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panic: %v\n%s", task.Name, r, debug.Stack())
		}
	}()
	return task.Run(ctx)
}

func (q *TaskQueue) record(task *Task, err error, duration time.Duration) {
	if q.opts.State == nil {
		return
	}
	q.mu.Lock()
	result := types.TaskResult{
		RunID:     q.opts.RunID,
		Task:      task.Name,
		Status:    task.Status,
		Attempts:  task.Attempts,
		OutputKey: task.OutputKey,
		Duration:  duration,
	}
	q.mu.Unlock()
	if err != nil {
		result.Error = err.Error()
	}
	if recErr := q.opts.State.RecordTask(result); recErr != nil {
		q.log.Warn("Failed to record task state",
			logger.WithField("task", task.Name),
			logger.WithField("error", recErr.Error()))
	}
}

func (q *TaskQueue) requeue(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, task)
	q.sortQueue()
}

func (q *TaskQueue) sortQueue() {
	sort.SliceStable(q.queue, func(i, j int) bool {
		if q.queue[i].Priority != q.queue[j].Priority {
			return q.queue[i].Priority > q.queue[j].Priority
		}
		return q.queue[i].seq < q.queue[j].seq
	})
}
