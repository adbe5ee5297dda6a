package meta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathAppendsDotMeta(t *testing.T) {
	require.Equal(t, "/a/b/source.txt.meta", Path("/a/b/source.txt"))
}

func TestLoadMissingSidecarReturnsNotOk(t *testing.T) {
	sidecar, ok, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, sidecar)
}

func TestEnsureSingleAssetGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	require.NoError(t, os.WriteFile(source, []byte("hi"), 0644))

	id, err := EnsureSingleAsset(source, 1, nil)
	require.NoError(t, err)

	_, err = os.Stat(Path(source))
	require.NoError(t, err)

	again, err := EnsureSingleAsset(source, 1, nil)
	require.NoError(t, err)
	require.Equal(t, id, again, "a second call must reuse the persisted uuid")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	require.NoError(t, os.WriteFile(source, []byte("hi"), 0644))

	id, err := EnsureSingleAsset(source, 3, nil)
	require.NoError(t, err)

	sidecar, ok, err := Load(source)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sidecar.Assets, 1)
	require.Equal(t, id, sidecar.Assets[0].AssetUUID)
	require.EqualValues(t, 3, sidecar.Assets[0].ImporterVersion)
}
