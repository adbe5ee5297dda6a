package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/filesystem"
)

func drainEvents(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPollOnceEmitsUpdatedAndRemoved(t *testing.T) {
	root := t.TempDir()
	events := make(chan Event, 64)
	w := &watcher{events: events}

	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))

	snapshot := w.pollOnce(root, nil)
	created := drainEvents(events)
	require.NotEmpty(t, created)

	// An unchanged tree polls quietly.
	snapshot = w.pollOnce(root, snapshot)
	require.Empty(t, drainEvents(events))

	// Modification surfaces as Updated.
	require.NoError(t, os.WriteFile(path, []byte("grown-content"), 0644))
	require.NoError(t, os.Chtimes(path, time.Now().Add(time.Second), time.Now().Add(time.Second)))
	snapshot = w.pollOnce(root, snapshot)
	updated := drainEvents(events)
	require.NotEmpty(t, updated)
	var sawUpdate bool
	for _, ev := range updated {
		if ev.Kind == EventUpdated && ev.Path == path {
			sawUpdate = true
		}
	}
	require.True(t, sawUpdate)

	// Removal surfaces as Removed.
	require.NoError(t, os.Remove(path))
	w.pollOnce(root, snapshot)
	removed := drainEvents(events)
	var sawRemove bool
	for _, ev := range removed {
		if ev.Kind == EventRemoved && ev.Path == path {
			sawRemove = true
		}
	}
	require.True(t, sawRemove)
}

func TestWatchEmitsScanBracketsAndInitialEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	canonicalRoot, err := filesystem.Canonicalize(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 256)
	done := make(chan struct{})
	go func() {
		Watch(ctx, []string{root}, events, nil)
		close(done)
	}()

	var collected []Event
	deadline := time.After(5 * time.Second)
collect:
	for {
		select {
		case ev := <-events:
			collected = append(collected, ev)
			if ev.Kind == EventScanEnd {
				break collect
			}
		case <-deadline:
			t.Fatal("timed out waiting for initial scan")
		}
	}

	require.Equal(t, EventScanStart, collected[0].Kind)
	require.Equal(t, canonicalRoot, collected[0].Root)

	var sawFile bool
	for _, ev := range collected {
		if ev.Kind == EventUpdated && filepath.Base(ev.Path) == "a.txt" {
			sawFile = true
		}
	}
	require.True(t, sawFile, "initial scan must enumerate existing files")

	last := collected[len(collected)-1]
	require.Equal(t, EventScanEnd, last.Kind)
	require.Contains(t, last.WatchedRoots, canonicalRoot)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher shutdown")
	}
	// The channel closes once the watcher has fully wound down.
	for range events {
	}
}

func TestMetadataFromInfoClassifiesTypes(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0644))

	info, err := os.Lstat(file)
	require.NoError(t, err)
	m := metadataFromInfo(info)
	require.Equal(t, FileTypeFile, m.Type)
	require.EqualValues(t, 3, m.Size)

	dirInfo, err := os.Lstat(dir)
	require.NoError(t, err)
	require.Equal(t, FileTypeDirectory, metadataFromInfo(dirInfo).Type)
}
