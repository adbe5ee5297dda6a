package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/assethub"
	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/filesystem"
)

// TestDaemonImportsCreatedFileEndToEnd drives the whole pipeline: a file
// created under a watched root must end up as a committed asset in the hub
// with its artifact bytes in the cache.
func TestDaemonImportsCreatedFileEndToEnd(t *testing.T) {
	watched := t.TempDir()
	dbDir := t.TempDir()

	d, err := New(Options{
		DatabasePath:     filepath.Join(dbDir, "test.db"),
		WatchDirectories: []string{watched},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	sourcePath := filepath.Join(watched, "thing.txt")
	require.NoError(t, os.WriteFile(sourcePath, []byte("payload"), 0644))

	// The pipeline is asynchronous (watch, debounce, import), so poll until
	// the asset lands or the deadline passes.
	deadline := time.After(10 * time.Second)
	var committed []assethub.ArtifactMetadata
	for len(committed) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for import")
		case <-time.After(50 * time.Millisecond):
		}
		committed = committed[:0]
		require.NoError(t, d.hub.ForEach(func(metadata assethub.ArtifactMetadata) error {
			committed = append(committed, metadata)
			return nil
		}))
	}

	// The committed artifact's bytes must be retrievable from the cache.
	data, found, err := d.cache.Get(committed[0].ArtifactID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("payload"), data)

	// The source path must resolve to the asset via the hub's path index.
	// The tracker indexes canonicalized paths, so resolve the same way.
	canonical, err := filesystem.Canonicalize(sourcePath)
	require.NoError(t, err)
	var ids []assetid.AssetUuid
	require.Eventually(t, func() bool {
		var err error
		ids, err = d.hub.PathAssets(canonical)
		return err == nil && len(ids) == 1
	}, 5*time.Second, 50*time.Millisecond)
	require.Equal(t, committed[0].AssetID, ids[0])

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for daemon shutdown")
	}
}
