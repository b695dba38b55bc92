package templates

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads declarations while the engine runs. Close stops it.
type Watcher struct {
	fs *fsnotify.Watcher
}

// Watch reloads the registry whenever a YAML file under dir is written,
// created or renamed. onReload, when non-nil, runs after each
// successful reload; a failed reload leaves the previous declarations
// in place and logs a warning. Reloading swaps template identities, so
// trackers built from the old declarations keep their old images until
// rebuilt.
func (r *Registry) Watch(dir string, onReload func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create declaration watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-fs.Events:
				if !ok {
					return
				}
				if !isYAML(filepath.Base(event.Name)) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.LoadFromDirectory(dir); err != nil {
					r.log.Warnw("declaration reload failed", "file", event.Name, "error", err)
					continue
				}
				r.log.Infow("declarations reloaded", "file", event.Name, "templates", r.Count())
				if onReload != nil {
					onReload()
				}
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				r.log.Warnw("declaration watcher error", "error", err)
			}
		}
	}()
	return &Watcher{fs: fs}, nil
}

// Close stops the watcher. The reload goroutine exits once the
// underlying event channels close.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
