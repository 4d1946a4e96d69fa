package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/store"
)

// watcherDebounce is the delay after the last filesystem event before the
// projection is rebuilt. 500ms coalesces a transition's record rewrite and
// bucket rename into a single rebuild.
const watcherDebounce = 500 * time.Millisecond

// Watcher rebuilds a projection whenever the task store changes on disk. It
// watches every status bucket plus the tasks root so buckets created later
// are picked up.
type Watcher struct {
	store  *store.Store
	logger zerolog.Logger

	// Guards the debounce timer so Run's cleanup can cancel it safely.
	mu       sync.Mutex
	debounce *time.Timer

	signals chan struct{} // debounced rebuild trigger; capacity 1
}

// NewWatcher builds a watcher over the given store.
func NewWatcher(st *store.Store) *Watcher {
	return &Watcher{
		store:   st,
		logger:  log.WithComponent("views"),
		signals: make(chan struct{}, 1),
	}
}

// Run watches the store and calls rebuild after each debounced change until
// the context is cancelled. rebuild runs on the watcher goroutine; an
// initial rebuild fires before the first event.
func (w *Watcher) Run(ctx context.Context, rebuild func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start view watcher: %w", err)
	}
	defer watcher.Close()

	tasksRoot := filepath.Join(w.store.Root(), store.TasksDir)
	if err := watcher.Add(tasksRoot); err != nil {
		return fmt.Errorf("failed to watch %s: %w", tasksRoot, err)
	}
	entries, err := os.ReadDir(tasksRoot)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", tasksRoot, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			// Bucket watch failures are non-fatal; the root watch still
			// catches renames into the bucket.
			_ = watcher.Add(filepath.Join(tasksRoot, e.Name()))
		}
	}

	defer func() {
		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
	}()

	if err := rebuild(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.signals:
			if err := rebuild(); err != nil {
				w.logger.Warn().Err(err).Msg("View rebuild failed")
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// A new status bucket appeared; watch inside it too.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(watcherDebounce, w.sendSignal)
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("View watcher error")
		}
	}
}

// sendSignal does a non-blocking send; a pending signal already covers the
// coalesced events.
func (w *Watcher) sendSignal() {
	select {
	case w.signals <- struct{}{}:
	default:
	}
}
