package loader

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ChangeEvent reports that a config file was created, written, removed or
// renamed in one of the watched directories.
type ChangeEvent struct {
	Name    string // file stem, as accepted by Resolve/Load
	Removed bool
}

// Watcher is the "live directory" variant of Loader: it watches the
// configured directories for additions, writes and removals and notifies
// subscribers,
// without itself parsing anything. Enumeration and read semantics are
// still Loader's; this only detects change.
type Watcher struct {
	w       *fsnotify.Watcher
	changes chan ChangeEvent
}

// Watch starts watching every directory the Loader was built with. The
// returned Watcher's Changes channel must be drained or Close called to
// avoid leaking the underlying inotify watch.
func (l *Loader) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range l.dirs {
		if err := fw.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("could not watch config directory")
		}
	}

	watcher := &Watcher{w: fw, changes: make(chan ChangeEvent, 16)}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) run() {
	defer close(w.changes)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			ext := strings.TrimPrefix(filepath.Ext(ev.Name), ".")
			if _, ok := parsers[ext]; !ok {
				continue
			}
			stem := strings.TrimSuffix(filepath.Base(ev.Name), filepath.Ext(ev.Name))
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.changes <- ChangeEvent{Name: stem}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.changes <- ChangeEvent{Name: stem, Removed: true}
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config directory watch error")
		}
	}
}

// Changes returns the channel on which additions, writes and removals are
// reported.
func (w *Watcher) Changes() <-chan ChangeEvent { return w.changes }

func (w *Watcher) Close() error { return w.w.Close() }
