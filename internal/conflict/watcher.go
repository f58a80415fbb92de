package conflict

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SaveWatcher observes the conflicted files during a manual merge and
// remembers which of them were written since the last poll. It only
// feeds the confirm prompt; losing events is harmless because the
// marker re-scan is what actually gates completion.
type SaveWatcher struct {
	watcher *fsnotify.Watcher
	tracked map[string]string // absolute path -> repo-relative path

	mu      sync.Mutex
	changed map[string]struct{}
	done    chan struct{}
}

// NewSaveWatcher watches the directories containing the given
// repo-relative paths under dir.
func NewSaveWatcher(dir string, paths []string) (*SaveWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &SaveWatcher{
		watcher: w,
		tracked: make(map[string]string, len(paths)),
		changed: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs := filepath.Join(dir, p)
		sw.tracked[abs] = p
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, err
		}
	}

	go sw.loop()
	return sw, nil
}

func (sw *SaveWatcher) loop() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			rel, tracked := sw.tracked[event.Name]
			if !tracked {
				continue
			}
			sw.mu.Lock()
			sw.changed[rel] = struct{}{}
			sw.mu.Unlock()
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Changed returns the repo-relative paths saved since the previous
// call, and resets the accumulator.
func (sw *SaveWatcher) Changed() []string {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(sw.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(sw.changed))
	for p := range sw.changed {
		out = append(out, p)
	}
	sw.changed = make(map[string]struct{})
	return out
}

// Close stops watching.
func (sw *SaveWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
