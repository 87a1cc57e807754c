package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Update carries the new contents of the watched file.
type Update struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// Watcher re-reads a markdown file whenever it changes on disk.
//
// It watches the parent directory rather than the file itself, because many
// editors save by writing a temp file and renaming it over the original,
// which drops a watch placed on the file.
type Watcher struct {
	watcher *fsnotify.Watcher
	updates chan Update
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	path    string
}

// NewWatcher creates a Watcher. It emits nothing until Start.
func NewWatcher() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: w,
		updates: make(chan Update, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching path.
func (w *Watcher) Start(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w.path = abs
	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops the watcher and closes the Updates and Errors channels. It is
// safe to call on a watcher that was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if !wasRunning {
		return w.watcher.Close()
	}

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.updates)
	close(w.errors)
	return nil
}

// Updates returns the channel of file contents. Closed by Stop.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Errors returns the channel of watch and read errors. Closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning reports whether the watcher has been started and not stopped.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			data, err := os.ReadFile(w.path)
			if err != nil {
				// A rename-over save briefly leaves no file; the following
				// create event delivers the content.
				if os.IsNotExist(err) {
					continue
				}
				w.sendError(fmt.Errorf("failed to read %s: %w", w.path, err))
				continue
			}

			select {
			case w.updates <- Update{Path: w.path, Text: string(data)}:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}
