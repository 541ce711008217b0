package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
	mirror "github.com/sidkik/dirmirror/pkg/sync"
)

// renameWindow is how long a rename waits for the creation that completes
// it. inotify queues both halves of a rename back to back, so a rename
// without a matching creation within the window moved the entry out of the
// watched tree.
const renameWindow = 50 * time.Millisecond

// errStopped aborts a walk when the watcher is closed.
var errStopped = errors.New("watcher stopped")

// notifier is the subset of fsnotify.Watcher used by Watcher.
type notifier interface {
	Add(path string) error
	Remove(path string) error
	Close() error
}

// Mocked out for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()

	newNotifier = func() (notifier, <-chan fsnotify.Event, <-chan error, error) {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, nil, nil, err
		}
		return watcher, watcher.Events, watcher.Errors, nil
	}
)

// Watcher recursively watches a directory tree, and translates the raw
// notifications into mirror events.
//
// fsnotify only watches single directories, so Watcher adds a watch for each
// directory in the tree, and for each directory created afterwards. Files
// that are created in a new directory before its watch is added are reported
// by walking the directory once it's watched. This may report a file as
// created more than once.
type Watcher struct {
	root    string
	ignorer mirror.Ignorer
	log     log.FieldLogger
	clock   clockwork.Clock

	notifier notifier
	raw      <-chan fsnotify.Event
	rawErrs  <-chan error

	// dirs is the set of watched directories. It's only accessed by the
	// event loop after Watch returns.
	dirs map[string]struct{}

	// pendingRename is the origin of a rename that hasn't been paired with
	// its creation yet.
	pendingRename string
	renameTimeout <-chan time.Time

	events    chan mirror.Event
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the tree rooted at `root`. Paths matched by `ignorer`
// aren't watched, and changes to them aren't reported.
//
// Errors from adding the initial watches are returned, so that callers can
// detect exhausted watch or file descriptor limits. Errors that occur after
// Watch returns are sent on Errors().
func Watch(root string, ignorer mirror.Ignorer, logger log.FieldLogger) (*Watcher, error) {
	n, raw, rawErrs, err := newNotifier()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := &Watcher{
		root:     filepath.Clean(root),
		ignorer:  ignorer,
		log:      logger,
		clock:    clock,
		notifier: n,
		raw:      raw,
		rawErrs:  rawErrs,
		dirs:     map[string]struct{}{},
		events:   make(chan mirror.Event, 64),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}

	if err := w.addTree(w.root, false); err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if err := n.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file watcher")
		}
		return nil, err
	}

	go w.run()
	return w, nil
}

// Events returns the channel that events are sent on. It's closed once the
// Watcher stops.
func (w *Watcher) Events() <-chan mirror.Event {
	return w.events
}

// Errors returns the channel that non-fatal errors are sent on, such as
// fsnotify.ErrEventOverflow.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and releases its watches. It's safe to call more
// than once.
func (w *Watcher) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.notifier.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.raw:
			if !ok {
				w.flushRename()
				return
			}
			w.handle(ev)
		case err, ok := <-w.rawErrs:
			if !ok {
				// A nil channel blocks forever, so this case is disabled.
				w.rawErrs = nil
				continue
			}
			w.sendErr(err)
		case <-w.renameTimeout:
			w.flushRename()
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create):
		if w.pendingRename != "" {
			from := w.pendingRename
			w.pendingRename, w.renameTimeout = "", nil
			w.moved(from, path)
			return
		}
		w.created(path)
	case ev.Has(fsnotify.Rename):
		if w.pendingRename != path {
			w.flushRename()
		}
		w.pendingRename = path
		w.renameTimeout = w.clock.After(renameWindow)
	case ev.Has(fsnotify.Remove):
		isDir := w.forgetDir(path)
		w.send(mirror.Event{Op: mirror.Deleted, Path: path, IsDir: isDir})
	case ev.Has(fsnotify.Write):
		if _, ok := w.dirs[path]; ok {
			return
		}
		w.send(mirror.Event{Op: mirror.Modified, Path: path})
	}
	// Chmod events aren't mirrored. Content changes always come with a Write.
}

func (w *Watcher) created(path string) {
	info, err := fs.Stat(path)
	if err != nil {
		// The entry was removed before we got to it. The removal has its own
		// event.
		if !os.IsNotExist(err) {
			w.sendErr(errors.WithContext(err, fmt.Sprintf("stat %q", path)))
		}
		return
	}

	if !info.IsDir() {
		w.send(mirror.Event{Op: mirror.Created, Path: path})
		return
	}

	if !w.send(mirror.Event{Op: mirror.Created, Path: path, IsDir: true}) {
		return
	}

	if err := w.addTree(path, true); err != nil {
		w.sendErr(err)
	}
}

// moved handles a rename within the watched tree. Renames are paired with
// creations by arrival order alone, so a rename out of the tree that's
// immediately followed by an unrelated creation gets reported as a move. To
// keep the destination correct either way, the moved entry is also reported
// as created, which recopies it from the source.
func (w *Watcher) moved(from, to string) {
	info, err := fs.Stat(to)
	if err != nil {
		if !os.IsNotExist(err) {
			w.sendErr(errors.WithContext(err, fmt.Sprintf("stat %q", to)))
		}
		// The entry is already gone again, so only the removal of the origin
		// needs to be mirrored.
		w.send(mirror.Event{Op: mirror.Deleted, Path: from, IsDir: w.forgetDir(from)})
		return
	}

	w.forgetDir(from)
	ev := mirror.Event{Op: mirror.Moved, OldPath: from, Path: to, IsDir: info.IsDir()}
	if !w.send(ev) {
		return
	}

	if !info.IsDir() {
		w.send(mirror.Event{Op: mirror.Created, Path: to})
		return
	}

	if err := w.addTree(to, true); err != nil {
		w.sendErr(err)
	}
}

// flushRename reports a rename that wasn't followed by a creation as a
// deletion.
func (w *Watcher) flushRename() {
	path := w.pendingRename
	if path == "" {
		return
	}
	w.pendingRename, w.renameTimeout = "", nil

	// A rename of a watched directory is reported both by its parent and by
	// the directory itself. If something exists at the path again, the
	// rename is stale.
	if exists, err := afero.Exists(fs, path); err == nil && exists {
		return
	}

	isDir := w.forgetDir(path)
	w.send(mirror.Event{Op: mirror.Deleted, Path: path, IsDir: isDir})
}

// addTree watches `dir` and all of its subdirectories. If `synthesize` is
// true, a Created event is sent for every file in the tree.
func (w *Watcher) addTree(dir string, synthesize bool) error {
	return afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path != dir && os.IsNotExist(err) {
				return nil
			}
			return errors.WithContext(err, fmt.Sprintf("walk %q", path))
		}

		if w.ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if _, ok := w.dirs[path]; ok {
				return nil
			}

			if err := w.notifier.Add(path); err != nil {
				// The directory may have been removed while walking.
				if path != dir && os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return errors.WithContext(err, fmt.Sprintf("watch %q", path))
			}
			w.dirs[path] = struct{}{}
			return nil
		}

		if synthesize && !w.send(mirror.Event{Op: mirror.Created, Path: path}) {
			return errStopped
		}
		return nil
	})
}

// forgetDir stops tracking `path` and its subdirectories. It returns whether
// `path` was a watched directory.
func (w *Watcher) forgetDir(path string) (wasDir bool) {
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir != path && !strings.HasPrefix(dir, prefix) {
			continue
		}

		// inotify drops the watch of a removed directory on its own, so
		// this usually fails.
		if err := w.notifier.Remove(dir); err != nil {
			w.log.WithError(err).WithField("path", dir).Debug("Failed to remove watch")
		}
		delete(w.dirs, dir)
		wasDir = wasDir || dir == path
	}
	return wasDir
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.ignorer.Ignored(rel)
}

// send delivers `ev` unless it's for an excluded path. It returns false if the
// watcher was closed while waiting for the consumer.
func (w *Watcher) send(ev mirror.Event) bool {
	// Moves are passed through so that moves into or out of excluded paths
	// are mirrored.
	if ev.Op != mirror.Moved && w.ignored(ev.Path) {
		return true
	}

	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errs <- err:
	case <-w.done:
	}
}
