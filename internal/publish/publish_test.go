package publish

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assethub"
	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/packfile"
	"github.com/atelier-assets/atelier/internal/storekv"
)

func makeUuid(seed byte) assetid.AssetUuid {
	var id assetid.AssetUuid
	for i := range id {
		id[i] = seed + byte(i)
	}
	return id
}

func TestPublishRoundTripsThroughPackfile(t *testing.T) {
	dir := t.TempDir()
	store, err := storekv.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := assethub.New(store)
	cache := artifactcache.New(store, 0)

	asset := makeUuid(1)
	payload := []byte("artifact-payload")
	artifactID := assetid.DeriveArtifactId(42, asset, nil)

	_, err = cache.Put(artifactID, payload)
	require.NoError(t, err)
	require.NoError(t, hub.Commit(asset, assethub.ArtifactMetadata{
		ArtifactID:       artifactID,
		AssetID:          asset,
		UncompressedSize: uint64(len(payload)),
	}, []string{"models/thing.obj"}))

	packPath := filepath.Join(dir, "out.pack")
	count, err := Publish(store, packPath, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The published generation's name is recorded so housekeeping never
	// prunes it.
	name, err := CurrentPackfileName(store)
	require.NoError(t, err)
	require.Equal(t, "out.pack", name)

	reader, err := packfile.Open(packPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	blobs, err := reader.GetArtifacts([]assetid.AssetUuid{asset})
	require.NoError(t, err)
	require.Equal(t, payload, blobs[0])

	candidates, err := reader.GetAssetCandidates("models/thing.obj")
	require.NoError(t, err)
	require.Len(t, candidates.Assets, 1)
	require.Equal(t, asset, candidates.Assets[0].AssetID)
}

func TestPublishSkipsAssetsMissingFromCache(t *testing.T) {
	dir := t.TempDir()
	store, err := storekv.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := assethub.New(store)
	require.NoError(t, hub.Commit(makeUuid(1), assethub.ArtifactMetadata{
		ArtifactID: assetid.ArtifactId(7),
		AssetID:    makeUuid(1),
	}, []string{"a.obj"}))

	entries, err := Snapshot(store, nil)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCurrentPackfileNameEmptyBeforeFirstPublish(t *testing.T) {
	store, err := storekv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	name, err := CurrentPackfileName(store)
	require.NoError(t, err)
	require.Empty(t, name)
}
