// Package replaywatch hot-reloads a replay file during development:
// whenever the file on disk changes, it re-opens and re-parses it and
// hands the fresh *replay.Reader to a callback, so a developer can
// iterate on a host subscriber against a live engine without
// restarting the host loop.
//
// Grounded on internal/engine/dev.go's DevMode (fsnotify.NewWatcher,
// watcher.Add on a single path, Op&fsnotify.Write filtering, a
// reloadCooldown to coalesce rapid writes), re-targeted from a cart
// assets directory onto a single replay file.
package replaywatch

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lockstepgg/lockstep-engine/internal/replay"
)

// DefaultCooldown is how long Watcher waits after one reload before it
// will act on another write event, matching dev.go's 500ms.
const DefaultCooldown = 500 * time.Millisecond

// Watcher watches a single replay file and re-parses it on every write,
// handing the result to OnReload.
type Watcher struct {
	path     string
	cooldown time.Duration

	// OnReload is called with the freshly-parsed reader after every
	// write event that survives the cooldown, or with a non-nil err if
	// the file failed to open or parse. Set before calling Start.
	OnReload func(r *replay.Reader, err error)

	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	lastReload time.Time
	stopped    chan struct{}
	done       chan struct{}
}

// New returns a Watcher for path, with cooldown defaulting to
// DefaultCooldown if zero.
func New(path string, cooldown time.Duration) *Watcher {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Watcher{path: path, cooldown: cooldown}
}

// Start begins watching the file and runs until Stop is called. It
// performs one synchronous initial load before returning, so the
// caller has a reader in hand immediately, then watches for further
// changes on its own goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil // already started
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("replaywatch: create watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		w.mu.Unlock()
		return fmt.Errorf("replaywatch: watch %s: %w", w.path, err)
	}

	w.watcher = fw
	w.stopped = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.reload()

	go w.loop()
	return nil
}

// Stop closes the underlying watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw := w.watcher
	stopped := w.stopped
	done := w.done
	w.watcher = nil
	w.mu.Unlock()

	if fw == nil {
		return
	}
	close(stopped)
	fw.Close()
	<-done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stopped:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			w.mu.Lock()
			since := time.Since(w.lastReload)
			w.mu.Unlock()
			if since < w.cooldown {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.OnReload != nil {
				w.OnReload(nil, fmt.Errorf("replaywatch: watcher error: %w", err))
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()

	r, err := w.open()
	if w.OnReload != nil {
		w.OnReload(r, err)
	}
}

func (w *Watcher) open() (*replay.Reader, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("replaywatch: open %s: %w", w.path, err)
	}
	defer f.Close()

	r, err := replay.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("replaywatch: parse %s: %w", w.path, err)
	}
	return r, nil
}
