package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openet/core/pkg/mocks"
	"github.com/openet/core/pkg/queue"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noop(context.Context) error { return nil }

func newQueue(opts queue.Options) *queue.TaskQueue {
	if opts.Unit == 0 {
		opts.Unit = time.Millisecond
	}
	return queue.NewTaskQueue(opts)
}

func TestTaskQueue_EnqueueOrder(t *testing.T) {
	q := newQueue(queue.Options{})

	for _, task := range []*queue.Task{
		queue.NewTask("10S_201607", 10, noop),
		queue.NewTask("11S_201607", 50, noop),
		queue.NewTask("12S_201607", 10, noop),
		queue.NewTask("13S_201607", 50, noop),
	} {
		require.NoError(t, q.Enqueue(task))
	}
	assert.Equal(t, 4, q.Size())

	peek, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "11S_201607", peek.Name)

	var got []string
	for {
		task, ok := q.Dequeue()
		if !ok {
			break
		}
		got = append(got, task.Name)
	}
	assert.Equal(t, []string{"11S_201607", "13S_201607", "10S_201607", "12S_201607"}, got)
}

func TestTaskQueue_EnqueueErrors(t *testing.T) {
	q := newQueue(queue.Options{})

	require.NoError(t, q.Enqueue(queue.NewTask("10S_201607", 1, noop)))
	assert.ErrorIs(t, q.Enqueue(queue.NewTask("10S_201607", 2, noop)), queue.ErrDuplicateTask)
	assert.ErrorIs(t, q.Enqueue(queue.NewTask("10S_201608", 1, nil)), queue.ErrNoRun)
}

func TestNewTask(t *testing.T) {
	a := queue.NewTask("a", 1, noop)
	b := queue.NewTask("b", 1, noop)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, types.TaskStatusPending, a.Status)
}

func TestTaskQueue_Start(t *testing.T) {
	notifier := mocks.NewMockNotifier()
	recorder := mocks.NewMockStateRecorder()
	q := newQueue(queue.Options{RunID: "run-1", Notifier: notifier, State: recorder})

	var ran int32
	for i := 0; i < 6; i++ {
		task := queue.NewTask(fmt.Sprintf("tile_%d", i), float64(i), func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
		task.OutputKey = fmt.Sprintf("exports/tile_%d.parquet", i)
		require.NoError(t, q.Enqueue(task))
	}

	summary, err := q.Start(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.EqualValues(t, 6, ran)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.ReadyCount())

	starts, success, failures := notifier.Snapshot()
	assert.Len(t, starts, 6)
	assert.Len(t, success, 6)
	assert.Empty(t, failures)
	assert.Equal(t, []mocks.RunSummary{{Completed: 6}}, notifier.Runs)

	last, ok := recorder.Last("tile_3")
	require.True(t, ok)
	assert.Equal(t, types.TaskStatusCompleted, last.Status)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, "exports/tile_3.parquet", last.OutputKey)
	assert.Equal(t, 1, last.Attempts)

	for _, task := range q.Tasks() {
		assert.Equal(t, types.TaskStatusCompleted, task.Status)
	}
}

func TestTaskQueue_Parallelization(t *testing.T) {
	q := newQueue(queue.Options{})

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(queue.NewTask(fmt.Sprintf("t%d", i), 1, func(context.Context) error {
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return nil
		})))
	}

	_, err := q.Start(context.Background(), 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestTaskQueue_RetriesTransientErrors(t *testing.T) {
	recorder := mocks.NewMockStateRecorder()
	q := newQueue(queue.Options{MaxRetries: 3, State: recorder})

	var calls int32
	require.NoError(t, q.Enqueue(queue.NewTask("10S_201607", 1, func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &storage.Error{Code: storage.CodeTimeout, Transient: true, Err: errors.New("slow down")}
		}
		return nil
	})))

	summary, err := q.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.EqualValues(t, 3, calls)

	last, _ := recorder.Last("10S_201607")
	assert.Equal(t, 3, last.Attempts)
	assert.Equal(t, types.TaskStatusCompleted, last.Status)
}

func TestTaskQueue_PermanentFailure(t *testing.T) {
	notifier := mocks.NewMockNotifier()
	recorder := mocks.NewMockStateRecorder()
	q := newQueue(queue.Options{MaxRetries: 3, Notifier: notifier, State: recorder})

	var calls int32
	require.NoError(t, q.Enqueue(queue.NewTask("bad", 2, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("missing et_fraction band")
	})))
	require.NoError(t, q.Enqueue(queue.NewTask("good", 1, noop)))

	summary, err := q.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.EqualValues(t, 1, calls)

	_, _, failures := notifier.Snapshot()
	assert.Equal(t, []string{"bad"}, failures)

	last, _ := recorder.Last("bad")
	assert.Equal(t, types.TaskStatusFailed, last.Status)
	assert.Contains(t, last.Error, "missing et_fraction band")
}

func TestTaskQueue_RecoversPanics(t *testing.T) {
	q := newQueue(queue.Options{})
	require.NoError(t, q.Enqueue(queue.NewTask("panics", 1, func(context.Context) error {
		panic("boom")
	})))

	summary, err := q.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	tasks := q.Tasks()
	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].Err.Error(), "boom")
}

func TestTaskQueue_StateRecorderErrorIsNotFatal(t *testing.T) {
	recorder := mocks.NewMockStateRecorder()
	recorder.SetError(errors.New("disk full"))
	q := newQueue(queue.Options{State: recorder})
	require.NoError(t, q.Enqueue(queue.NewTask("a", 1, noop)))

	summary, err := q.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
}

func TestTaskQueue_Canceled(t *testing.T) {
	notifier := mocks.NewMockNotifier()
	q := newQueue(queue.Options{Notifier: notifier})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	require.NoError(t, q.Enqueue(queue.NewTask("blocks", 2, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})))
	require.NoError(t, q.Enqueue(queue.NewTask("later", 1, noop)))

	go func() {
		<-started
		cancel()
	}()

	_, err := q.Start(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, notifier.Runs)

	for _, task := range q.Tasks() {
		assert.Equal(t, types.TaskStatusPending, task.Status, task.Name)
	}
}

func TestTaskQueue_MaxReadyThrottles(t *testing.T) {
	q := newQueue(queue.Options{MaxReady: 1, Delay: 1})

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(queue.NewTask(fmt.Sprintf("t%d", i), 1, func(context.Context) error {
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(15 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return nil
		})))
	}

	summary, err := q.Start(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Completed)
	assert.Equal(t, 1, maxSeen)
}
