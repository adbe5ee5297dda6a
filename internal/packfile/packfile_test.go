package packfile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assetid"
)

func makeUuid(seed byte) assetid.AssetUuid {
	var id assetid.AssetUuid
	for i := range id {
		id[i] = seed + byte(i)
	}
	return id
}

func buildTestPack(t *testing.T, entries []Entry) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pack")
	require.NoError(t, Write(path, entries, nil))
	reader, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

// TestDependencyClosureBFS mirrors scenario S6: A depends on B, B depends
// on C, C depends on nothing. Requesting metadata for {A} must return
// exactly {A, B, C}.
func TestDependencyClosureBFS(t *testing.T) {
	a, b, c := makeUuid(1), makeUuid(2), makeUuid(3)

	entries := []Entry{
		{Path: "a", AssetID: a, ArtifactID: 1, LoadDeps: []assetid.AssetRef{assetid.NewUuidRef(b)}, Data: []byte("A")},
		{Path: "b", AssetID: b, ArtifactID: 2, LoadDeps: []assetid.AssetRef{assetid.NewUuidRef(c)}, Data: []byte("B")},
		{Path: "c", AssetID: c, ArtifactID: 3, Data: []byte("C")},
	}
	reader := buildTestPack(t, entries)

	result := reader.GetAssetMetadataWithDependencies(MetadataRequest{RequestedAssets: []assetid.AssetUuid{a}})

	got := make(map[assetid.AssetUuid]bool, len(result))
	for _, e := range result {
		got[e.AssetID] = true
	}
	require.Len(t, got, 3)
	require.True(t, got[a])
	require.True(t, got[b])
	require.True(t, got[c])
}

func TestDependencyClosureSkipsUnknownUUIDs(t *testing.T) {
	a := makeUuid(1)
	unknown := makeUuid(9)

	entries := []Entry{
		{Path: "a", AssetID: a, ArtifactID: 1, LoadDeps: []assetid.AssetRef{assetid.NewUuidRef(unknown)}, Data: []byte("A")},
	}
	reader := buildTestPack(t, entries)

	result := reader.GetAssetMetadataWithDependencies(MetadataRequest{RequestedAssets: []assetid.AssetUuid{a}})
	require.Len(t, result, 1)
	require.Equal(t, a, result[0].AssetID)
}

func TestGetAssetCandidatesNormalizesSeparatorsAndErrorsOnMissing(t *testing.T) {
	a := makeUuid(1)
	entries := []Entry{
		{Path: "models/thing.obj", AssetID: a, ArtifactID: 1, Data: []byte("x")},
	}
	reader := buildTestPack(t, entries)

	candidates, err := reader.GetAssetCandidates("models\\thing.obj")
	require.NoError(t, err)
	require.Equal(t, "models/thing.obj", candidates.Path)
	require.Len(t, candidates.Assets, 1)

	_, err = reader.GetAssetCandidates("does/not/exist")
	require.Error(t, err)
}

func TestGetArtifactsReturnsBlobBytesAndErrorsOnMissing(t *testing.T) {
	a, b := makeUuid(1), makeUuid(2)
	entries := []Entry{
		{Path: "a", AssetID: a, ArtifactID: 1, Data: []byte("payload-a")},
		{Path: "b", AssetID: b, ArtifactID: 2, Data: []byte("payload-b-longer")},
	}
	reader := buildTestPack(t, entries)

	blobs, err := reader.GetArtifacts([]assetid.AssetUuid{b, a})
	require.NoError(t, err)
	require.Equal(t, []byte("payload-b-longer"), blobs[0])
	require.Equal(t, []byte("payload-a"), blobs[1])

	_, err = reader.GetArtifacts([]assetid.AssetUuid{makeUuid(99)})
	require.Error(t, err)
}

func TestWriteRoundTripsCompressionMetadata(t *testing.T) {
	a := makeUuid(1)
	entries := []Entry{
		{
			Path:             "a",
			AssetID:          a,
			ArtifactID:       1,
			Compression:      artifactcache.CompressionLz4,
			UncompressedSize: 100,
			CompressedSize:   40,
			Data:             []byte("x"),
		},
	}
	reader := buildTestPack(t, entries)

	candidates, err := reader.GetAssetCandidates("a")
	require.NoError(t, err)
	require.Equal(t, artifactcache.CompressionLz4, candidates.Assets[0].Compression)
	require.EqualValues(t, 100, candidates.Assets[0].UncompressedSize)
	require.EqualValues(t, 40, candidates.Assets[0].CompressedSize)
}

func TestDispatcherDeliversResultsAsynchronously(t *testing.T) {
	a := makeUuid(1)
	entries := []Entry{{Path: "a", AssetID: a, ArtifactID: 1, Data: []byte("hi")}}
	reader := buildTestPack(t, entries)

	d := NewDispatcher(reader, 2)
	defer d.Stop()

	resultCh := make(chan []Entry, 1)
	d.GetAssetMetadataWithDependencies(MetadataRequest{RequestedAssets: []assetid.AssetUuid{a}}, func(entries []Entry) {
		resultCh <- entries
	})

	select {
	case result := <-resultCh:
		require.Len(t, result, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatcher result")
	}
}
