package artifactcache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/storekv"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store, err := storekv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, 0)
}

func TestPutGetRoundTripSmallBlob(t *testing.T) {
	cache := newTestCache(t)
	id := assetid.ArtifactId(42)
	data := []byte("small")

	stats, err := cache.Put(id, data)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, stats.Compression)

	got, ok, err := cache.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, data, got)
}

func TestPutGetRoundTripCompressibleBlob(t *testing.T) {
	cache := newTestCache(t)
	id := assetid.ArtifactId(7)
	data := bytes.Repeat([]byte("compressible-payload "), 100)

	stats, err := cache.Put(id, data)
	require.NoError(t, err)
	require.Equal(t, CompressionLz4, stats.Compression)
	require.Less(t, stats.CompressedSize, stats.UncompressedSize)

	got, ok, err := cache.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, data, got)
}

func TestGetMissingReturnsNotOk(t *testing.T) {
	cache := newTestCache(t)
	_, ok, err := cache.Get(assetid.ArtifactId(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContainsAndDelete(t *testing.T) {
	cache := newTestCache(t)
	id := assetid.ArtifactId(9)

	has, err := cache.Contains(id)
	require.NoError(t, err)
	require.False(t, has)

	_, err = cache.Put(id, []byte("data"))
	require.NoError(t, err)

	has, err = cache.Contains(id)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, cache.Delete(id))
	has, err = cache.Contains(id)
	require.NoError(t, err)
	require.False(t, has)
}

func TestForEachIDVisitsAllStoredArtifacts(t *testing.T) {
	cache := newTestCache(t)
	ids := []assetid.ArtifactId{1, 2, 3}
	for _, id := range ids {
		_, err := cache.Put(id, []byte("x"))
		require.NoError(t, err)
	}

	seen := map[assetid.ArtifactId]bool{}
	require.NoError(t, cache.ForEachID(func(id assetid.ArtifactId) error {
		seen[id] = true
		return nil
	}))
	for _, id := range ids {
		require.True(t, seen[id])
	}
}
