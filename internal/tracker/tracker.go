package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/storekv"
	"github.com/atelier-assets/atelier/internal/watch"
)

// DefaultDebounceWindow is the default delay between a committed batch and
// the emission of an Update event to listeners, collapsing bursts of
// filesystem churn into a single notification.
const DefaultDebounceWindow = 50 * time.Millisecond

// watchEventBuffer sizes the channel between the directory watcher and the
// tracker's run loop; the watcher blocks on send once it fills, which is
// the backpressure mechanism between the two.
const watchEventBuffer = 256

// Tracker applies a watch.Event stream to the persisted
// {source_files, dirty_files, rename_file_events} tables and notifies
// registered listeners of scan completions and debounced update batches.
type Tracker struct {
	store     *storekv.Store
	watchDirs []string
	debounce  time.Duration
	logger    *logging.Logger

	running int32 // atomic bool, CAS-guarded so concurrent Run calls are no-ops

	stopCh chan struct{}
	doneCh chan struct{}

	listenersMu sync.Mutex
	listeners   []chan Event
	registerCh  chan chan Event
}

// New constructs a Tracker over store, watching watchDirs once Run is
// called. A non-positive debounce selects DefaultDebounceWindow. logger may
// be nil.
func New(store *storekv.Store, watchDirs []string, debounce time.Duration, logger *logging.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	return &Tracker{
		store:      store,
		watchDirs:  append([]string(nil), watchDirs...),
		debounce:   debounce,
		logger:     logger.Sublogger("tracker"),
		registerCh: make(chan chan Event, 8),
	}
}

// IsRunning reports whether Run is currently active.
func (t *Tracker) IsRunning() bool {
	return atomic.LoadInt32(&t.running) == 1
}

// RegisterListener returns a channel on which tracker events are delivered.
// Delivery is best-effort: a listener that stops draining loses events
// rather than blocking the tracker. The channel is buffered so an attentive
// listener never loses an event to scheduling jitter.
func (t *Tracker) RegisterListener() <-chan Event {
	ch := make(chan Event, 4)
	if t.IsRunning() {
		t.registerCh <- ch
	} else {
		t.listenersMu.Lock()
		t.listeners = append(t.listeners, ch)
		t.listenersMu.Unlock()
	}
	return ch
}

// Run watches t.watchDirs and applies the resulting event stream until ctx
// is cancelled or Stop is called. Run is idempotent: a second concurrent
// call while already running is a no-op.
func (t *Tracker) Run(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&t.running, 0)

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	defer close(t.doneCh)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	events := make(chan watch.Event, watchEventBuffer)
	go watch.Watch(watchCtx, t.watchDirs, events, t.logger.Sublogger("watch"))

	var listeners []chan Event
	t.listenersMu.Lock()
	listeners = append(listeners, t.listeners...)
	t.listenersMu.Unlock()

	var scanStack []*scanFrame

	var debounceTimer *time.Timer
	var debounceC <-chan time.Time

	send := func(evt Event) {
		listeners = broadcast(listeners, evt, t.logger)
	}

	for {
		select {
		case <-ctx.Done():
			t.drainFinalDebounce(debounceTimer, debounceC, send)
			return
		case <-t.stopCh:
			t.drainFinalDebounce(debounceTimer, debounceC, send)
			return
		case ch := <-t.registerCh:
			listeners = append(listeners, ch)
		case <-debounceC:
			debounceC = nil
			send(Event{Kind: EventUpdate, At: time.Now()})
		case ev, ok := <-events:
			if !ok {
				t.logger.Debug("stopping: watcher channel exhausted")
				t.drainFinalDebounce(debounceTimer, debounceC, send)
				return
			}
			committed := t.applyBatch(ev, events, &scanStack, send)
			if committed {
				if debounceTimer == nil {
					debounceTimer = time.NewTimer(t.debounce)
				} else {
					if !debounceTimer.Stop() {
						select {
						case <-debounceTimer.C:
						default:
						}
					}
					debounceTimer.Reset(t.debounce)
				}
				debounceC = debounceTimer.C
			}
		}
	}
}

// Stop signals the tracker to exit Run and blocks until it has done so. It
// is a no-op if the tracker is not running.
func (t *Tracker) Stop() {
	if !t.IsRunning() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

func (t *Tracker) drainFinalDebounce(timer *time.Timer, c <-chan time.Time, send func(Event)) {
	// c is nil once the debounce has fired, so only an armed debounce
	// reaches the send below.
	if timer == nil || c == nil {
		return
	}
	// An armed debounce still fires before shutdown so listeners observe
	// the final committed batch.
	select {
	case <-c:
	default:
	}
	send(Event{Kind: EventUpdate, At: time.Now()})
}

func broadcast(listeners []chan Event, evt Event, logger *logging.Logger) []chan Event {
	live := listeners[:0]
	for _, ch := range listeners {
		select {
		case ch <- evt:
			live = append(live, ch)
		default:
			// A listener that cannot keep up loses this event rather than
			// blocking the tracker.
			logger.Debug("listener channel full, dropping event")
			live = append(live, ch)
		}
	}
	return live
}

// scanFrame records, while a scan is in progress, every Updated/Renamed
// observation beneath its root so ScanEnd can diff the observed set against
// the database.
type scanFrame struct {
	root  string
	files map[string]bool
}

// applyBatch drains every watch.Event immediately available on events
// (after the one just received) into a single write transaction, amortizing
// commit cost across bursts. It returns true if the transaction made any
// changes (so the caller should (re)arm the debounce timer). If the batch
// completed a top-level scan, a Start event is emitted after the commit —
// never folded into the debounced Update.
func (t *Tracker) applyBatch(first watch.Event, events <-chan watch.Event, scanStack *[]*scanFrame, send func(Event)) bool {
	batch := []watch.Event{first}
drain:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break drain
			}
			batch = append(batch, ev)
		default:
			break drain
		}
	}

	committed := false
	scanCompleted := false
	err := t.store.Update(func(tx *bbolt.Tx) error {
		for _, ev := range batch {
			changed, err := t.applyEvent(tx, ev, scanStack)
			if err != nil {
				return err
			}
			if changed {
				committed = true
			}
			if ev.Kind == watch.EventScanEnd && len(*scanStack) == 0 {
				scanCompleted = true
			}
		}
		return nil
	})
	if err != nil {
		// A DB error here is fatal to the batch: the transaction has been
		// rolled back by bbolt, so on-disk state remains consistent, but
		// the daemon cannot make progress.
		t.logger.Errorf("fatal error applying file tracker batch: %v", err)
		panic(fmt.Sprintf("tracker: fatal batch error: %v", err))
	}
	if scanCompleted {
		send(Event{Kind: EventStart, At: time.Now()})
	}
	return committed
}

func (t *Tracker) applyEvent(tx *bbolt.Tx, ev watch.Event, scanStack *[]*scanFrame) (bool, error) {
	switch ev.Kind {
	case watch.EventScanStart:
		*scanStack = append(*scanStack, &scanFrame{root: ev.Root, files: make(map[string]bool)})
		return false, nil

	case watch.EventScanEnd:
		return t.handleScanEnd(tx, ev, scanStack)

	case watch.EventUpdated:
		return t.handleUpdated(tx, ev, scanStack)

	case watch.EventRenamed:
		return t.handleRenamed(tx, ev, scanStack)

	case watch.EventRemoved:
		return t.handleRemoved(tx, ev, scanStack)

	case watch.EventFileError:
		if ev.Fatal {
			t.logger.Errorf("fatal watch error: %v", ev.Err)
		} else {
			t.logger.Warnf("watch error: %v", ev.Err)
		}
		return false, nil

	default:
		return false, nil
	}
}

func (t *Tracker) handleUpdated(tx *bbolt.Tx, ev watch.Event, scanStack *[]*scanFrame) (bool, error) {
	observe(scanStack, ev.Path, true)

	next := metadataToFileState(ev.Metadata)
	sourceFiles := tx.Bucket(storekv.BucketSourceFiles)
	key := []byte(ev.Path)

	if existing := sourceFiles.Get(key); existing != nil {
		prior, err := decodeSourceInfo(existing)
		if err == nil && prior.equalMetadata(next) {
			return false, nil
		}
	}

	if err := sourceFiles.Put(key, encodeSourceInfo(next)); err != nil {
		return false, fmt.Errorf("put source_files[%s]: %w", ev.Path, err)
	}
	if err := tx.Bucket(storekv.BucketDirtyFiles).Put(key, encodeDirtyInfo(next)); err != nil {
		return false, fmt.Errorf("put dirty_files[%s]: %w", ev.Path, err)
	}
	return true, nil
}

func (t *Tracker) handleRenamed(tx *bbolt.Tx, ev watch.Event, scanStack *[]*scanFrame) (bool, error) {
	observe(scanStack, ev.OldPath, false)
	observe(scanStack, ev.Path, true)

	sourceFiles := tx.Bucket(storekv.BucketSourceFiles)
	dirtyFiles := tx.Bucket(storekv.BucketDirtyFiles)

	var priorSrc FileState
	if existing := sourceFiles.Get([]byte(ev.OldPath)); existing != nil {
		if decoded, err := decodeSourceInfo(existing); err == nil {
			priorSrc = decoded
		}
	}
	priorSrc.State = StateDeleted

	next := metadataToFileState(ev.Metadata)

	if err := sourceFiles.Delete([]byte(ev.OldPath)); err != nil {
		return false, fmt.Errorf("delete source_files[%s]: %w", ev.OldPath, err)
	}
	if err := sourceFiles.Put([]byte(ev.Path), encodeSourceInfo(next)); err != nil {
		return false, fmt.Errorf("put source_files[%s]: %w", ev.Path, err)
	}
	if err := dirtyFiles.Put([]byte(ev.OldPath), encodeDirtyInfo(priorSrc)); err != nil {
		return false, fmt.Errorf("put dirty_files[%s]: %w", ev.OldPath, err)
	}
	if err := dirtyFiles.Put([]byte(ev.Path), encodeDirtyInfo(next)); err != nil {
		return false, fmt.Errorf("put dirty_files[%s]: %w", ev.Path, err)
	}

	seq, err := storekv.NextSequence(tx, storekv.BucketRenameEvents)
	if err != nil {
		return false, err
	}
	seqKey := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqKey, seq)
	if err := tx.Bucket(storekv.BucketRenameEvents).Put(seqKey, encodeRenameEvent(ev.OldPath, ev.Path)); err != nil {
		return false, fmt.Errorf("put rename_file_events[%d]: %w", seq, err)
	}

	return true, nil
}

func (t *Tracker) handleRemoved(tx *bbolt.Tx, ev watch.Event, scanStack *[]*scanFrame) (bool, error) {
	observe(scanStack, ev.Path, false)
	return removePath(tx, ev.Path)
}

// removePath applies the Removed semantics for a single path: if it had a
// source_files entry, carry its last known metadata into dirty_files as
// Deleted, then drop the source_files entry.
func removePath(tx *bbolt.Tx, path string) (bool, error) {
	sourceFiles := tx.Bucket(storekv.BucketSourceFiles)
	key := []byte(path)

	existing := sourceFiles.Get(key)
	if existing == nil {
		return false, nil
	}
	prior, err := decodeSourceInfo(existing)
	if err != nil {
		prior = FileState{}
	}
	prior.State = StateDeleted

	if err := tx.Bucket(storekv.BucketDirtyFiles).Put(key, encodeDirtyInfo(prior)); err != nil {
		return false, fmt.Errorf("put dirty_files[%s]: %w", path, err)
	}
	if err := sourceFiles.Delete(key); err != nil {
		return false, fmt.Errorf("delete source_files[%s]: %w", path, err)
	}
	return true, nil
}

// observe records an Updated/Renamed-destination sighting (present=true)
// or a Renamed-source removal (present=false) in the top scan frame, if
// any scan is in progress.
func observe(scanStack *[]*scanFrame, path string, present bool) {
	if len(*scanStack) == 0 {
		return
	}
	top := (*scanStack)[len(*scanStack)-1]
	if present {
		top.files[path] = true
	} else {
		delete(top.files, path)
	}
}

// handleScanEnd reconciles the database with the completed scan: it pops
// the scan frame, deletes any source_files entries beneath its root that
// were not observed during the scan, and, if this was the top-level scan
// (the frame stack is now empty), additionally deletes any source_files
// entry that falls under none of the currently watched roots.
func (t *Tracker) handleScanEnd(tx *bbolt.Tx, ev watch.Event, scanStack *[]*scanFrame) (bool, error) {
	if len(*scanStack) == 0 {
		return false, fmt.Errorf("tracker: ScanEnd with no matching ScanStart for %s", ev.Root)
	}
	frame := (*scanStack)[len(*scanStack)-1]
	*scanStack = (*scanStack)[:len(*scanStack)-1]

	changed := false

	disappeared, err := keysWithPrefixNotIn(tx, frame.root, frame.files)
	if err != nil {
		return false, err
	}
	for _, path := range disappeared {
		removed, err := removePath(tx, path)
		if err != nil {
			return false, err
		}
		changed = changed || removed
	}
	t.logger.Debugf("scanned %s: %d observed, %d removed", frame.root, len(frame.files), len(disappeared))

	if len(*scanStack) == 0 {
		orphaned, err := keysUnderNoRoot(tx, ev.WatchedRoots)
		if err != nil {
			return false, err
		}
		for _, path := range orphaned {
			removed, err := removePath(tx, path)
			if err != nil {
				return false, err
			}
			changed = changed || removed
		}
	}

	return changed, nil
}

func keysWithPrefixNotIn(tx *bbolt.Tx, prefix string, observed map[string]bool) ([]string, error) {
	var stale []string
	c := tx.Bucket(storekv.BucketSourceFiles).Cursor()
	prefixBytes := []byte(prefix)
	for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		path := string(k)
		if !observed[path] {
			stale = append(stale, path)
		}
	}
	return stale, nil
}

func keysUnderNoRoot(tx *bbolt.Tx, watchedRoots []string) ([]string, error) {
	var orphaned []string
	c := tx.Bucket(storekv.BucketSourceFiles).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		path := string(k)
		matched := false
		for _, root := range watchedRoots {
			if strings.HasPrefix(path, root) {
				matched = true
				break
			}
		}
		if !matched {
			orphaned = append(orphaned, path)
		}
	}
	sort.Strings(orphaned)
	return orphaned, nil
}
