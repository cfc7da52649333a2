package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openet/core/internal/watch"
	"github.com/openet/core/pkg/interfaces"
)

var _ interfaces.Watcher = (*watch.Watcher)(nil)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T, dir string, opts watch.Options) (*watch.Watcher, <-chan []watch.Event) {
	t.Helper()
	batches := make(chan []watch.Event, 8)
	opts.Dir = dir
	if opts.SettlingDelay == 0 {
		opts.SettlingDelay = 50 * time.Millisecond
	}
	w, err := watch.New(opts, func(events []watch.Event) { batches <- events })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	return w, batches
}

func waitBatch(t *testing.T, batches <-chan []watch.Event) []watch.Event {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settled events")
		return nil
	}
}

func paths(events []watch.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Path
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := watch.New(watch.Options{}, func([]watch.Event) {})
	assert.Error(t, err)
	_, err = watch.New(watch.Options{Dir: t.TempDir()}, nil)
	assert.Error(t, err)
	_, err = watch.New(watch.Options{Dir: t.TempDir(), Patterns: []string{"["}}, func([]watch.Event) {})
	assert.Error(t, err)
}

func TestWatcher_SettlesBatch(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir, watch.Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.parquet"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.parquet"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.parquet"), []byte("12"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.parquet.tmp"), []byte("x"), 0o644))

	batch := waitBatch(t, batches)
	assert.Equal(t, []string{"a.parquet", "b.parquet"}, paths(batch))
	assert.Equal(t, watch.FileCreated, batch[0].Type)
	assert.EqualValues(t, 2, batch[0].Size)
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir, watch.Options{})

	sub := filepath.Join(dir, "10S")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the loop time to add the new directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "scenes.parquet"), []byte("1"), 0o644))

	batch := waitBatch(t, batches)
	assert.Equal(t, []string{"10S/scenes.parquet"}, paths(batch))
}

func TestWatcher_ExcludedDirectory(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(archive, 0o755))
	_, batches := startWatcher(t, dir, watch.Options{Exclude: []string{"archive"}})

	require.NoError(t, os.WriteFile(filepath.Join(archive, "old.parquet"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.parquet"), []byte("1"), 0o644))

	batch := waitBatch(t, batches)
	assert.Equal(t, []string{"new.parquet"}, paths(batch))
}

func TestWatcher_Delete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.parquet")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	_, batches := startWatcher(t, dir, watch.Options{})

	require.NoError(t, os.Remove(path))

	batch := waitBatch(t, batches)
	require.Len(t, batch, 1)
	assert.Equal(t, watch.FileDeleted, batch[0].Type)
}

func TestWatcher_StartTwice(t *testing.T) {
	w, _ := startWatcher(t, t.TempDir(), watch.Options{})
	assert.ErrorIs(t, w.Start(context.Background()), watch.ErrAlreadyStarted)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := watch.New(watch.Options{Dir: t.TempDir()}, func([]watch.Event) {})
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := watch.New(watch.Options{Dir: filepath.Join(t.TempDir(), "missing")}, func([]watch.Event) {})
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := watch.New(watch.Options{Dir: t.TempDir()}, func([]watch.Event) {})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	cancel()
	assert.NoError(t, w.Stop())
}
