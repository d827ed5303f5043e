package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kiplm/kiplm/internal/catalog/store"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a table file appeared (including the target of a rename).
	OpCreate EventOp = iota
	// OpModify indicates a table file was written in place.
	OpModify
	// OpDelete indicates a table file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// TableEvent is a change to one table file.
type TableEvent struct {
	// Table is the table name (file stem).
	Table string
	// Path is the path of the file that changed.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// FileWatcher watches the store directory for changes to table files.
// Hidden files, such as the temp files of an atomic rewrite, are ignored.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan TableEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	closed  bool
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events, and
// must be stopped with Stop() to release the underlying watch.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan TableEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir for table file events.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return fmt.Errorf("watcher already stopped")
	}
	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and releases resources. It blocks until the event
// processing goroutine has exited. Events() and Errors() are closed
// afterwards. Calling Stop more than once is safe.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	err := fw.watcher.Close()

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the channel that emits TableEvent notifications.
func (fw *FileWatcher) Events() <-chan TableEvent {
	return fw.events
}

// Errors returns the channel that emits watch errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// processEvents converts fsnotify events to TableEvents until Stop.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if tableEvent, ok := convertEvent(event); ok {
				select {
				case fw.events <- tableEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a TableEvent.
// Returns false for events that should be ignored.
func convertEvent(event fsnotify.Event) (TableEvent, bool) {
	if !store.IsTableFile(filepath.Base(event.Name)) {
		return TableEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// The new name, if any, arrives as a create
		op = OpDelete
	default:
		return TableEvent{}, false
	}

	return TableEvent{
		Table: store.TableFromPath(event.Name),
		Path:  event.Name,
		Op:    op,
	}, true
}
