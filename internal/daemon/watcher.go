package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of spool file operation.
type EventOp int

const (
	// OpCreate indicates a new link file appeared.
	OpCreate EventOp = iota
	// OpModify indicates a link file was written to.
	OpModify
	// OpDelete indicates a link file was removed.
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

// SpoolEvent is a file system event for a link spool file.
type SpoolEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// SpoolWatcher watches the link spool directory for *.json files using
// fsnotify for cross-platform event monitoring.
type SpoolWatcher struct {
	watcher *fsnotify.Watcher
	events  chan SpoolEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSpoolWatcher creates a watcher for dir and starts emitting events.
func NewSpoolWatcher(dir string) (*SpoolWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch spool directory %s: %w", dir, err)
	}

	sw := &SpoolWatcher{
		watcher: watcher,
		events:  make(chan SpoolEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		running: true,
	}

	sw.wg.Add(1)
	go sw.processEvents()

	return sw, nil
}

// Stop stops watching and blocks until the event loop has exited.
func (sw *SpoolWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	sw.wg.Wait()

	close(sw.events)
	close(sw.errors)
	return nil
}

// Events returns the channel that emits spool events.
// Closed when the watcher is stopped.
func (sw *SpoolWatcher) Events() <-chan SpoolEvent {
	return sw.events
}

// Errors returns the channel that emits watcher errors.
// Closed when the watcher is stopped.
func (sw *SpoolWatcher) Errors() <-chan error {
	return sw.errors
}

// processEvents converts fsnotify events to SpoolEvents.
func (sw *SpoolWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if spoolEvent, ok := convertEvent(event); ok {
				select {
				case sw.events <- spoolEvent:
				case <-sw.done:
					return
				}
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a SpoolEvent.
// Returns false for events on non-JSON files or irrelevant operations.
func convertEvent(event fsnotify.Event) (SpoolEvent, bool) {
	if filepath.Ext(event.Name) != ".json" {
		return SpoolEvent{}, false
	}

	var op EventOp
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return SpoolEvent{}, false
	}

	return SpoolEvent{Path: event.Name, Op: op}, true
}
