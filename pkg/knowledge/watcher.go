package knowledge

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches a documents directory and marks the index dirty on change,
// debounced so editor save bursts trigger a single re-sync.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onDirty  func()
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	stopCh chan struct{}
}

// NewWatcher creates a watcher that invokes onDirty after changes settle.
func NewWatcher(logger zerolog.Logger, onDirty func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		logger:   logger,
		onDirty:  onDirty,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Watch starts watching a directory.
func (w *Watcher) Watch(path string) error {
	return w.watcher.Add(path)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only document files feed the index.
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".md" && ext != ".txt" {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Document change detected")

				w.scheduleDirty()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) scheduleDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onDirty)
}
