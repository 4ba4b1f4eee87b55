package state

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies when the state database changes on disk. The status
// command uses it to refresh its view while a run is writing checkpoints.
type Watcher struct {
	watcher *fsnotify.Watcher
	dbName  string
	changes chan struct{}
	done    chan struct{}
}

// NewWatcher watches the database file at path. The watch is on the parent
// directory because SQLite in WAL mode touches sibling -wal and -shm files.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		watcher: fsw,
		dbName:  filepath.Base(path),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Changes delivers a signal per batch of database writes. The channel is
// never closed while the watcher is open; coalescing means a slow reader
// sees at least one signal for any burst of writes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base != w.dbName && base != w.dbName+"-wal" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case <-w.watcher.Errors:
			// Keep watching.
		}
	}
}
