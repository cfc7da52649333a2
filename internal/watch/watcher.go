// Package watch reruns work when scene collections land in a directory
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openet/core/pkg/logger"
)

// DefaultSettlingDelay is the quiet period before a batch is delivered
const DefaultSettlingDelay = time.Second

// ErrAlreadyStarted is returned by a second Start call
var ErrAlreadyStarted = errors.New("watcher already started")

// EventType classifies a settled file change
type EventType string

const (
	FileCreated  EventType = "created"
	FileModified EventType = "modified"
	FileDeleted  EventType = "deleted"
)

// Event is the last change seen for one path during a settling window
type Event struct {
	// Path is relative to the watched directory, slash separated
	Path    string
	Type    EventType
	Size    int64
	ModTime time.Time
}

// Options configures a Watcher
type Options struct {
	Dir           string
	Patterns      []string
	Exclude       []string
	SettlingDelay time.Duration
	Logger        logger.Logger
}

// Watcher delivers batches of matching file events once the directory has
// been quiet for the settling delay
type Watcher struct {
	dir      string
	settling time.Duration
	include  *Matcher
	exclude  *Matcher
	logger   logger.Logger
	onChange func([]Event)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	pending map[string]Event
}

// New creates a watcher calling onChange with each settled batch
func New(opts Options, onChange func([]Event)) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	include, err := NewMatcher(patterns)
	if err != nil {
		return nil, err
	}
	exclude, err := NewExclusionMatcher(append(append([]string{}, DefaultExclusions...), opts.Exclude...))
	if err != nil {
		return nil, err
	}
	settling := opts.SettlingDelay
	if settling <= 0 {
		settling = DefaultSettlingDelay
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", opts.Dir, err)
	}
	return &Watcher{
		dir:      dir,
		settling: settling,
		include:  include,
		exclude:  exclude,
		logger:   logger.OrNop(opts.Logger),
		onChange: onChange,
		pending:  make(map[string]Event),
	}, nil
}

// Start watches the directory tree until ctx ends or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.addTree(fsw, w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)

	w.logger.Info(fmt.Sprintf("Watching %s", w.dir),
		logger.WithField("settling", w.settling.String()))
	return nil
}

// Stop ends the watch and waits for the event loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	cancel()
	err := fsw.Close()
	<-done
	return err
}

// Dir returns the absolute watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// Private methods

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && w.exclude.Match(w.rel(path)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return err
		}
		w.logger.Debug("Watching directory", logger.WithField("path", path))
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.settling)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.handle(fsw, event) {
				timer.Reset(w.settling)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", logger.WithField("error", err.Error()))

		case <-timer.C:
			w.flush()
		}
	}
}

// handle records a matching event and reports whether it restarts settling
func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	rel := w.rel(event.Name)
	if w.exclude.Match(rel) {
		return false
	}

	info, statErr := os.Stat(event.Name)
	if event.Has(fsnotify.Create) && statErr == nil && info.IsDir() {
		if err := w.addTree(fsw, event.Name); err != nil {
			w.logger.Warn(fmt.Sprintf("Failed to watch new directory %s", event.Name),
				logger.WithField("error", err.Error()))
		}
		return false
	}
	if !w.include.Match(rel) {
		return false
	}

	ev := Event{Path: rel, Type: FileModified}
	switch {
	case statErr != nil:
		ev.Type = FileDeleted
	case event.Has(fsnotify.Create):
		ev.Type = FileCreated
	}
	if statErr == nil {
		ev.Size = info.Size()
		ev.ModTime = info.ModTime()
	}

	w.mu.Lock()
	// A create followed by writes in one window is still a create
	if prev, ok := w.pending[rel]; ok && prev.Type == FileCreated && ev.Type == FileModified {
		ev.Type = FileCreated
	}
	w.pending[rel] = ev
	w.mu.Unlock()
	return true
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]Event, 0, len(w.pending))
	for _, ev := range w.pending {
		batch = append(batch, ev)
	}
	w.pending = make(map[string]Event)
	w.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	w.logger.Debug(fmt.Sprintf("Delivering %d settled changes", len(batch)))

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watch callback panic recovered", logger.WithField("panic", r))
		}
	}()
	w.onChange(batch)
}
