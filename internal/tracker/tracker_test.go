package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/storekv"
	"github.com/atelier-assets/atelier/internal/watch"
)

func newTestTracker(t *testing.T) (*Tracker, *storekv.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storekv.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, []string{dir}, 0, nil), store
}

func applyOne(t *testing.T, tr *Tracker, scanStack *[]*scanFrame, ev watch.Event) {
	t.Helper()
	err := tr.store.Update(func(tx *bbolt.Tx) error {
		_, err := tr.applyEvent(tx, ev, scanStack)
		return err
	})
	require.NoError(t, err)
}

func meta(size uint64) watch.Metadata {
	return watch.Metadata{ModifiedAt: time.Unix(0, 1000), Size: size, Type: watch.FileTypeFile}
}

// TestCreateMarksDirtyAndPersists mirrors scenario S1: a Create observed
// inside a scan produces a source_files entry and an Exists dirty_files
// entry.
func TestCreateMarksDirtyAndPersists(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame
	path := "/D/test.txt"

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanStart, Root: "/D"})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: path, Metadata: meta(3)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}})

	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		state, ok, err := GetFileState(tx, path)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 3, state.Length)

		dirty, ok, err := GetDirtyFileState(tx, path)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StateExists, dirty.State)
		return nil
	}))
}

// TestModifyUpdatesLengthAndRemainsDirty mirrors scenario S2.
func TestModifyUpdatesLengthAndRemainsDirty(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame
	path := "/D/test.txt"

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanStart, Root: "/D"})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: path, Metadata: meta(3)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}})

	require.NoError(t, store.Update(func(tx *bbolt.Tx) error {
		return DeleteDirtyFileState(tx, path)
	}))

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: path, Metadata: meta(0)})

	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		state, ok, err := GetFileState(tx, path)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 0, state.Length)

		dirty, ok, err := GetDirtyFileState(tx, path)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StateExists, dirty.State)
		return nil
	}))
}

// TestDeleteCarriesLastKnownLength mirrors scenario S3.
func TestDeleteCarriesLastKnownLength(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame
	path := "/D/test.txt"

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanStart, Root: "/D"})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: path, Metadata: meta(42)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}})

	require.NoError(t, store.Update(func(tx *bbolt.Tx) error {
		return DeleteDirtyFileState(tx, path)
	}))

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventRemoved, Path: path})

	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		_, ok, err := GetFileState(tx, path)
		require.NoError(t, err)
		require.False(t, ok)

		dirty, ok, err := GetDirtyFileState(tx, path)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StateDeleted, dirty.State)
		require.EqualValues(t, 42, dirty.Length)
		return nil
	}))
}

// TestRenameRecordsEventAndFlipsDirtyState mirrors scenario S4.
func TestRenameRecordsEventAndFlipsDirtyState(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame
	srcPath, dstPath := "/D/a.txt", "/D/b.txt"

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanStart, Root: "/D"})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: srcPath, Metadata: meta(5)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}})

	applyOne(t, tr, &scanStack, watch.Event{
		Kind: watch.EventRenamed, OldPath: srcPath, Path: dstPath, Metadata: meta(5),
	})

	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		_, ok, err := GetFileState(tx, srcPath)
		require.NoError(t, err)
		require.False(t, ok)

		dstState, ok, err := GetFileState(tx, dstPath)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 5, dstState.Length)

		srcDirty, ok, err := GetDirtyFileState(tx, srcPath)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StateDeleted, srcDirty.State)

		dstDirty, ok, err := GetDirtyFileState(tx, dstPath)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StateExists, dstDirty.State)

		events, err := ReadRenameEvents(tx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, srcPath, events[0].Src)
		require.Equal(t, dstPath, events[0].Dst)
		require.EqualValues(t, 1, events[0].Seq)
		return nil
	}))
}

// TestScanEndPrunesDisappearedEntries checks the top-level-scan pruning
// rule: an entry under a previously watched root that the latest
// watched-roots set no longer includes is deleted.
func TestScanEndPrunesDisappearedEntries(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame

	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanStart, Root: "/D"})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: "/D/keep.txt", Metadata: meta(1)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventUpdated, Path: "/E/gone.txt", Metadata: meta(1)})
	applyOne(t, tr, &scanStack, watch.Event{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}})

	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		_, ok, err := GetFileState(tx, "/D/keep.txt")
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = GetFileState(tx, "/E/gone.txt")
		require.NoError(t, err)
		require.False(t, ok, "entry outside watched roots should be pruned on top-level scan")
		return nil
	}))
}

func TestClearRenameEventsEmptiesTable(t *testing.T) {
	tr, store := newTestTracker(t)
	var scanStack []*scanFrame

	applyOne(t, tr, &scanStack, watch.Event{
		Kind: watch.EventRenamed, OldPath: "/D/a.txt", Path: "/D/b.txt", Metadata: meta(1),
	})

	require.NoError(t, store.Update(func(tx *bbolt.Tx) error {
		return ClearRenameEvents(tx)
	}))
	require.NoError(t, store.View(func(tx *bbolt.Tx) error {
		events, err := ReadRenameEvents(tx)
		require.NoError(t, err)
		require.Empty(t, events)
		return nil
	}))
}

// TestReplayYieldsIdenticalTables replays one event stream against two
// fresh databases and requires byte-identical source_files, dirty_files,
// and rename-log contents.
func TestReplayYieldsIdenticalTables(t *testing.T) {
	stream := []watch.Event{
		{Kind: watch.EventScanStart, Root: "/D"},
		{Kind: watch.EventUpdated, Path: "/D/a.txt", Metadata: meta(1)},
		{Kind: watch.EventUpdated, Path: "/D/b.txt", Metadata: meta(2)},
		{Kind: watch.EventScanEnd, Root: "/D", WatchedRoots: []string{"/D"}},
		{Kind: watch.EventRenamed, OldPath: "/D/a.txt", Path: "/D/c.txt", Metadata: meta(1)},
		{Kind: watch.EventRemoved, Path: "/D/b.txt"},
	}

	dump := func(t *testing.T) map[string]map[string]string {
		tr, store := newTestTracker(t)
		var scanStack []*scanFrame
		for _, ev := range stream {
			applyOne(t, tr, &scanStack, ev)
		}

		tables := map[string]map[string]string{}
		require.NoError(t, store.View(func(tx *bbolt.Tx) error {
			for _, bucket := range [][]byte{storekv.BucketSourceFiles, storekv.BucketDirtyFiles, storekv.BucketRenameEvents} {
				contents := map[string]string{}
				c := tx.Bucket(bucket).Cursor()
				for k, v := c.First(); k != nil; k, v = c.Next() {
					contents[string(k)] = string(v)
				}
				tables[string(bucket)] = contents
			}
			return nil
		}))
		return tables
	}

	require.Equal(t, dump(t), dump(t))
}

func TestRegisterListenerReceivesEventsWhenRunning(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.running = 1
	defer func() { tr.running = 0 }()

	go func() {
		ch := <-tr.registerCh
		ch <- Event{Kind: EventStart}
	}()

	ch := tr.RegisterListener()
	select {
	case evt := <-ch:
		require.Equal(t, EventStart, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for listener registration event")
	}
}
