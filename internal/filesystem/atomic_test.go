package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicNonExistentDirectory(t *testing.T) {
	err := WriteFileAtomic("/does/not/exist/file", []byte{}, 0600, nil)
	require.Error(t, err, "atomic file write must fail for a non-existent directory")
}

func TestWriteFileAtomicRoundTrip(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")
	contents := []byte{0, 1, 2, 3, 4, 5, 6}

	require.NoError(t, WriteFileAtomic(target, contents, 0600, nil))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, contents, data)

	// No intermediate temporary file survives a successful write.
	require.Empty(t, listTempFiles(t, directory))
}

func TestWriteFileAtomicReplacesExistingContents(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")

	require.NoError(t, os.WriteFile(target, []byte("original"), 0600))
	require.NoError(t, WriteFileAtomic(target, []byte("replacement"), 0600, nil))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("replacement"), data)
}

// TestWriteFileAtomicCrashLeftoverDoesNotAffectTarget models a crash between
// temp file creation and the final rename: the abandoned temporary must not
// disturb the target, and a subsequent write must still succeed around it.
func TestWriteFileAtomicCrashLeftoverDoesNotAffectTarget(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0600))

	// A crash leaves a half-written temporary behind.
	leftover, err := os.CreateTemp(directory, atomicWriteTemporaryNamePrefix)
	require.NoError(t, err)
	_, err = leftover.Write([]byte("half-writ"))
	require.NoError(t, err)
	require.NoError(t, leftover.Close())

	// The target is untouched by the abandoned temporary.
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), data)

	// A later write succeeds and replaces the target; the leftover stays
	// behind for housekeeping to sweep.
	require.NoError(t, WriteFileAtomic(target, []byte("recovered"), 0600, nil))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte("recovered"), data)
	require.Len(t, listTempFiles(t, directory), 1)
}

func listTempFiles(t *testing.T, directory string) []string {
	t.Helper()
	entries, err := os.ReadDir(directory)
	require.NoError(t, err)
	var temps []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), atomicWriteTemporaryNamePrefix) {
			temps = append(temps, entry.Name())
		}
	}
	return temps
}

func TestCanonicalizeResolvesSymlinks(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0600))

	link := filepath.Join(directory, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	canonicalTarget, err := Canonicalize(target)
	require.NoError(t, err)
	canonicalLink, err := Canonicalize(link)
	require.NoError(t, err)
	require.Equal(t, canonicalTarget, canonicalLink)
}

func TestCanonicalizeFallsBackForMissingPaths(t *testing.T) {
	// A just-removed path still canonicalizes lexically, so removal events
	// can be correlated with their watched root.
	canonical, err := Canonicalize(filepath.Join(t.TempDir(), "gone", "..", "gone.txt"))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(canonical))
	require.NotContains(t, canonical, "..")
}
