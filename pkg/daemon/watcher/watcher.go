// Package watcher watches the mode catalog file so the daemon can reload it
// when it changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// DefaultDebounce coalesces the burst of events an editor produces when
// saving a file.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a single file.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	closed bool
}

// New watches path. The parent directory is watched rather than the file,
// so replacing the file by rename is seen as well.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		watcher:  fsw,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce sets how long the watcher waits for events to settle.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed. onChange is called once per settled burst of
// events touching the file; removal is reported too, so the callback must
// tolerate a missing file.
func (w *Watcher) Run(ctx context.Context, onChange func(path string, op fsnotify.Op)) {
	log := logging.Get("watcher")

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending fsnotify.Op
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug("catalog event", "path", event.Name, "op", event.Op.String())
			pending |= event.Op

			w.mu.Lock()
			d := w.debounce
			w.mu.Unlock()
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			op := pending
			pending = 0
			if onChange != nil {
				onChange(w.path, op)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watcher error", "error", err)
		}
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
