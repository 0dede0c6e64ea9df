package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
)

var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// Watcher reports changes to a local tree.
type Watcher struct {
	root    string
	matcher *sync.Matcher
	watcher *fsnotify.Watcher
	updates chan fsnotify.Event

	// Changes receives a value after a change is followed by a quiet period.
	// Bursts of changes are collapsed into a single value.
	Changes <-chan struct{}
}

// Watch watches for changes to files within `root`. Directories excluded by
// `matcher` aren't watched, and changes to excluded paths are ignored.
func Watch(root string, matcher *sync.Matcher, quiet time.Duration) (*Watcher, error) {
	pathsToWatch, err := getPathsToWatch(root, matcher)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	w := &Watcher{
		root:    root,
		matcher: matcher,
		watcher: watcher,
		updates: make(chan fsnotify.Event, 64),
	}
	w.Changes = debounce(combineUpdates(w.updates), quiet)
	go w.filter()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// filter drops events for excluded paths, and starts watching directories
// that are created after the watch began.
func (w *Watcher) filter() {
	defer close(w.updates)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || w.matcher.Excludes(filepath.ToSlash(rel)) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				w.addNewDir(event.Name)
			}
			w.updates <- event
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) addNewDir(path string) {
	fi, err := fs.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}

	paths, err := getPathsToWatch(path, nil)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to list new directory")
		return
	}
	for _, p := range paths {
		rel, err := filepath.Rel(w.root, p)
		if err != nil || w.matcher.Excludes(filepath.ToSlash(rel)) {
			continue
		}
		if err := w.watcher.Add(p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to watch new directory")
		}
	}
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// debounce delays each update until `quiet` has passed without another one.
func debounce(updates <-chan struct{}, quiet time.Duration) <-chan struct{} {
	debounced := make(chan struct{}, 1)
	go func() {
		defer close(debounced)

		var timer <-chan time.Time
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				timer = clock.After(quiet)
			case <-timer:
				timer = nil
				select {
				case debounced <- struct{}{}:
				default:
				}
			}
		}
	}()
	return debounced
}

// getPathsToWatch returns `root` and every directory beneath it that isn't
// excluded. Because fsnotify doesn't watch directories recursively, each
// directory is watched individually. Watching a directory covers the files
// directly inside it.
func getPathsToWatch(root string, matcher *sync.Matcher) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.NewFriendlyError("Local path %q is not a directory.", root)
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			// Unreadable directories are reported by the sync itself.
			log.WithError(err).WithField("path", path).Debug("Skipping unreadable path")
			return nil
		}

		if !fi.IsDir() {
			return nil
		}

		if path != root && matcher != nil {
			relativePath, err := filepath.Rel(root, path)
			if err != nil {
				return errors.WithContext(err, "normalized path")
			}
			if matcher.Excludes(filepath.ToSlash(relativePath)) {
				return filepath.SkipDir
			}
		}

		paths = append(paths, path)
		return nil
	})
	return paths, err
}
