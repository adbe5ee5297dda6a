// Package watch implements the directory watcher: it produces a totally
// ordered stream of Event values for a set of root directories, bracketing
// initial and subsequent enumerations with ScanStart/ScanEnd, and falling
// back to polling for any root that cannot be natively watched.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
)

// DefaultPollingInterval is the fallback polling interval used for roots
// that cannot be natively watched.
const DefaultPollingInterval = 2 * time.Second

// renameCorrelationWindow bounds how long a Remove (or move-away) is held
// back waiting for a matching Create before being flushed as a true
// Removed. This is a heuristic: fsnotify does not expose the inotify rename
// cookie that would let us pair moves unambiguously, so pending removals are
// paired with the next Create on a first-in-first-out basis within the
// window.
const renameCorrelationWindow = 50 * time.Millisecond

// Watch watches roots and sends Event values on events until ctx is
// cancelled or a fatal error occurs, at which point events is closed. events
// must be buffered. Per-path events are causally ordered: a Removed is never
// emitted ahead of an Updated that logically preceded it.
func Watch(ctx context.Context, roots []string, events chan<- Event, logger *logging.Logger) {
	if cap(events) < 1 {
		panic("watch: events channel must be buffered")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		events <- Event{Kind: EventFileError, Err: fmt.Errorf("unable to create watcher: %w", err), Fatal: true}
		close(events)
		return
	}
	defer fsw.Close()

	w := &watcher{
		fsw:     fsw,
		events:  events,
		logger:  logger,
		watched: make(map[string]bool),
		pending: make(map[string]*pendingRemoval),
	}

	// Pollers and rename-correlation timers send on events from their own
	// goroutines, so they must be stopped and drained before the channel
	// closes.
	defer func() {
		w.cancelPollers()
		w.stopPendingTimers()
		w.goroutines.Wait()
		close(events)
	}()

	for _, root := range roots {
		w.scanRoot(root)
	}

	w.loop(ctx)
}

// watcher holds the mutable state of a single Watch invocation. The lock
// guards watched, pending, and pendingQ, which are touched both by the main
// loop and by rename-correlation timer callbacks.
type watcher struct {
	fsw        *fsnotify.Watcher
	events     chan<- Event
	logger     *logging.Logger
	goroutines sync.WaitGroup
	lock       sync.Mutex
	watched    map[string]bool
	pending    map[string]*pendingRemoval
	pendingQ   []string
	pollers    []context.CancelFunc
}

type pendingRemoval struct {
	timer *time.Timer
	fired bool
}

// scanRoot performs (or re-performs) a full recursive enumeration of root,
// bracketed by ScanStart/ScanEnd, and establishes native watches on every
// directory beneath it. If the root cannot be watched natively, it falls
// back to polling.
func (w *watcher) scanRoot(root string) {
	canonical, err := filesystem.Canonicalize(root)
	if err != nil {
		w.events <- Event{Kind: EventFileError, Err: fmt.Errorf("unable to canonicalize root %q: %w", root, err)}
		return
	}

	w.events <- Event{Kind: EventScanStart, Root: canonical}

	nativeFailed := false
	err = filepath.Walk(canonical, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			w.events <- Event{Kind: EventFileError, Err: errors.Wrapf(walkErr, "unable to walk %s", path)}
			return nil
		}
		canonicalPath, err := filesystem.Canonicalize(path)
		if err != nil {
			w.events <- Event{Kind: EventFileError, Err: errors.Wrapf(err, "unable to canonicalize %s", path)}
			return nil
		}
		w.events <- Event{Kind: EventUpdated, Path: canonicalPath, Metadata: metadataFromInfo(info)}
		if info.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				nativeFailed = true
			} else {
				w.lock.Lock()
				w.watched[canonicalPath] = true
				w.lock.Unlock()
			}
		}
		return nil
	})
	if err != nil {
		w.events <- Event{Kind: EventFileError, Err: errors.Wrapf(err, "unable to scan %s", root)}
		nativeFailed = true
	}

	if nativeFailed {
		w.startPoller(canonical)
	}

	w.events <- Event{Kind: EventScanEnd, Root: canonical, WatchedRoots: w.watchedRootsSnapshot()}
}

func (w *watcher) watchedRootsSnapshot() []string {
	w.lock.Lock()
	defer w.lock.Unlock()
	roots := make([]string, 0, len(w.watched))
	for root := range w.watched {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// loop is the watcher's main event-processing loop: it selects over native
// filesystem events, fsnotify errors, and context cancellation.
func (w *watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.cancelPollers()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleNative(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.logger.Error("lost underlying watch handle")
				w.events <- Event{Kind: EventFileError, Err: errors.New("watch handle lost"), Fatal: true}
				return
			}
			w.logger.Warnf("transient watch error: %v", err)
			w.events <- Event{Kind: EventFileError, Err: fmt.Errorf("watch error: %w", err)}
		}
	}
}

func (w *watcher) handleNative(ev fsnotify.Event) {
	canonicalPath, err := filesystem.Canonicalize(ev.Name)
	info, statErr := os.Lstat(ev.Name)
	exists := statErr == nil

	if err != nil && exists {
		w.events <- Event{Kind: EventFileError, Err: errors.Wrapf(err, "unable to canonicalize %s", ev.Name)}
		return
	}
	if !exists {
		canonicalPath = ev.Name
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.queueRemoval(canonicalPath)
	case exists:
		if w.resolvePendingAsRename(canonicalPath, info) {
			return
		}
		w.events <- Event{Kind: EventUpdated, Path: canonicalPath, Metadata: metadataFromInfo(info)}
		w.lock.Lock()
		unwatched := info.IsDir() && !w.watched[canonicalPath]
		w.lock.Unlock()
		if unwatched {
			w.scanRoot(canonicalPath)
		}
	}
}

// queueRemoval buffers a removal/rename-away for renameCorrelationWindow,
// giving a subsequent Create a chance to pair with it as a Renamed event.
func (w *watcher) queueRemoval(path string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if existing, ok := w.pending[path]; ok {
		if existing.timer.Stop() {
			w.goroutines.Done()
		}
		existing.fired = true
	}
	pr := &pendingRemoval{}
	w.goroutines.Add(1)
	pr.timer = time.AfterFunc(renameCorrelationWindow, func() {
		defer w.goroutines.Done()
		w.flushRemoval(path)
	})
	w.pending[path] = pr
	w.pendingQ = append(w.pendingQ, path)
}

// stopPendingTimers stops every rename-correlation timer that has not yet
// fired, releasing its waitgroup slot.
func (w *watcher) stopPendingTimers() {
	w.lock.Lock()
	defer w.lock.Unlock()
	for path, pr := range w.pending {
		if pr.timer.Stop() {
			w.goroutines.Done()
		}
		pr.fired = true
		delete(w.pending, path)
	}
	w.pendingQ = nil
}

// resolvePendingAsRename attempts to pair newPath with the oldest pending
// removal, emitting a single Renamed event in place of a Removed+Updated
// pair. It returns true if a pairing occurred.
func (w *watcher) resolvePendingAsRename(newPath string, info os.FileInfo) bool {
	w.lock.Lock()
	for len(w.pendingQ) > 0 {
		oldest := w.pendingQ[0]
		w.pendingQ = w.pendingQ[1:]

		pr, ok := w.pending[oldest]
		if !ok || pr.fired {
			continue
		}
		if pr.timer.Stop() {
			w.goroutines.Done()
		}
		delete(w.pending, oldest)

		if oldest == newPath {
			w.lock.Unlock()
			return false
		}

		delete(w.watched, oldest)
		rescan := info.IsDir() && !w.watched[newPath]
		w.lock.Unlock()

		w.events <- Event{
			Kind:     EventRenamed,
			OldPath:  oldest,
			Path:     newPath,
			Metadata: metadataFromInfo(info),
		}
		if rescan {
			w.scanRoot(newPath)
		}
		return true
	}
	w.lock.Unlock()
	return false
}

func (w *watcher) flushRemoval(path string) {
	w.lock.Lock()
	pr, ok := w.pending[path]
	if !ok || pr.fired {
		w.lock.Unlock()
		return
	}
	pr.fired = true
	delete(w.pending, path)
	delete(w.watched, path)
	w.lock.Unlock()
	w.events <- Event{Kind: EventRemoved, Path: path}
}

func metadataFromInfo(info os.FileInfo) Metadata {
	fileType := FileTypeFile
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		fileType = FileTypeSymlink
	case info.IsDir():
		fileType = FileTypeDirectory
	}
	return Metadata{
		ModifiedAt: info.ModTime(),
		Size:       uint64(info.Size()),
		Type:       fileType,
	}
}
