package registry

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// WatchManifest watches path (a namespace manifest file on disk, used by the
// repl subcommand for dev-time iteration on in-development primitive
// modules) and drops namespace's cached PrimitiveSpecs whenever the file is
// written or created. The file's content is not read: the next
// ImportNamespace call rebuilds the specs by calling the namespace's
// registered ManifestLoader again.
//
// The returned stop function closes the underlying watcher; callers must
// invoke it to avoid leaking the watcher goroutine.
func (r *Registry) WatchManifest(namespace, path string) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("voxlogica: watch manifest %s: %w", path, err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("voxlogica: watch manifest %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					r.mu.Lock()
					delete(r.loaded, namespace)
					delete(r.namespaces, namespace)
					r.mu.Unlock()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
