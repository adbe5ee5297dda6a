package assethub

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/storekv"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	store, err := storekv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func makeUuid(seed byte) assetid.AssetUuid {
	var id assetid.AssetUuid
	for i := range id {
		id[i] = seed + byte(i)
	}
	return id
}

func TestCommitAndGetRoundTrip(t *testing.T) {
	hub := newTestHub(t)
	asset := makeUuid(1)
	dep := makeUuid(2)

	metadata := ArtifactMetadata{
		ArtifactID:       assetid.ArtifactId(99),
		AssetID:          asset,
		BuildDeps:        []assetid.AssetRef{assetid.NewUuidRef(dep)},
		LoadDeps:         []assetid.AssetRef{assetid.NewPathRef("textures/other.png")},
		Compression:      artifactcache.CompressionLz4,
		UncompressedSize: 100,
		CompressedSize:   40,
		TypeID:           assetid.AssetTypeId(makeUuid(3)),
	}

	require.NoError(t, hub.Commit(asset, metadata, []string{"models/thing.obj"}))

	got, ok, err := hub.Get(asset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, metadata.ArtifactID, got.ArtifactID)
	require.Equal(t, metadata.Compression, got.Compression)
	require.Len(t, got.BuildDeps, 1)
	depUUID, isUUID := got.BuildDeps[0].Uuid()
	require.True(t, isUUID)
	require.Equal(t, dep, depUUID)
	require.Len(t, got.LoadDeps, 1)
	path, isPath := got.LoadDeps[0].Path()
	require.True(t, isPath)
	require.Equal(t, "textures/other.png", path)
}

func TestPathAssetsAndResolve(t *testing.T) {
	hub := newTestHub(t)
	asset := makeUuid(5)
	metadata := ArtifactMetadata{ArtifactID: assetid.ArtifactId(1), AssetID: asset}

	require.NoError(t, hub.Commit(asset, metadata, []string{"models/thing.obj"}))

	ids, err := hub.PathAssets("models/thing.obj")
	require.NoError(t, err)
	require.Equal(t, []assetid.AssetUuid{asset}, ids)

	resolved, ok, err := hub.Resolve(assetid.NewPathRef("models/thing.obj"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, assetid.ArtifactId(1), resolved.ArtifactID)
}

func TestCommitDoesNotDuplicatePathIndexEntries(t *testing.T) {
	hub := newTestHub(t)
	asset := makeUuid(8)
	metadata := ArtifactMetadata{ArtifactID: assetid.ArtifactId(2), AssetID: asset}

	require.NoError(t, hub.Commit(asset, metadata, []string{"a.obj"}))
	require.NoError(t, hub.Commit(asset, metadata, []string{"a.obj"}))

	ids, err := hub.PathAssets("a.obj")
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestRemovePathDropsIndexButKeepsMetadata(t *testing.T) {
	hub := newTestHub(t)
	asset := makeUuid(7)
	metadata := ArtifactMetadata{ArtifactID: assetid.ArtifactId(3), AssetID: asset}

	require.NoError(t, hub.Commit(asset, metadata, []string{"a.obj"}))
	require.NoError(t, hub.RemovePath("a.obj"))

	ids, err := hub.PathAssets("a.obj")
	require.NoError(t, err)
	require.Empty(t, ids)

	// The uuid index survives: superseded artifacts stay addressable.
	_, ok, err := hub.Get(asset)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubscribeReceivesCommitDelta(t *testing.T) {
	hub := newTestHub(t)
	ch := hub.Subscribe()

	asset := makeUuid(4)
	metadata := ArtifactMetadata{ArtifactID: assetid.ArtifactId(55), AssetID: asset}
	require.NoError(t, hub.Commit(asset, metadata, nil))

	select {
	case delta := <-ch:
		require.Equal(t, asset, delta.AssetID)
		require.Equal(t, assetid.ArtifactId(55), delta.NewArtifactID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for commit delta")
	}
}
