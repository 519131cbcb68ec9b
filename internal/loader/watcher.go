package loader

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of writes a logger produces.
const DefaultDebounce = 250 * time.Millisecond

// WatchConfig holds configuration for a Watcher.
type WatchConfig struct {
	Debounce time.Duration
	Verbose  bool
}

// Watcher calls onChange after any source file of a manifest is written or
// created, at most once per debounce interval.
type Watcher struct {
	files    map[string]bool
	onChange func()
	debounce time.Duration
	verbose  bool

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches the directories holding m's files and the manifest.
func NewWatcher(m *Manifest, onChange func(), cfg WatchConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		files:    make(map[string]bool),
		onChange: onChange,
		debounce: cfg.Debounce,
		verbose:  cfg.Verbose,
		watcher:  watcher,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	dirs := make(map[string]bool)
	for _, e := range m.Entries() {
		p := filepath.Clean(e.Path)
		w.files[p] = true
		dirs[filepath.Dir(p)] = true
	}
	if m.Dir != "" {
		w.files[filepath.Join(filepath.Clean(m.Dir), ManifestName)] = true
		dirs[filepath.Clean(m.Dir)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("could not watch %s: %w", dir, err)
		}
		if w.verbose {
			log.Printf("📁 Watcher: watching %s\n", dir)
		}
	}
	return w, nil
}

// Start runs the watch loop in the background until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.watchLoop()
}

// Stop stops the file watcher and waits for goroutines to finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	w.wg.Wait()
}

// watchLoop runs the file watcher event loop.
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only care about writes and creates
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if w.verbose {
				log.Printf("📁 Watcher: %s changed\n", filepath.Base(event.Name))
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher: watcher error: %v\n", err)
		}
	}
}
