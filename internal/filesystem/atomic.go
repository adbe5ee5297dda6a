// Package filesystem provides small filesystem helpers shared by the daemon:
// atomic file replacement (used for `.meta` sidecars and packfile publish)
// and path canonicalization (used by the directory watcher and tracker).
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/must"
)

const atomicWriteTemporaryNamePrefix = ".atelier-atomic-write-"

// WriteFileAtomic writes data to path using an intermediate temporary file
// that is swapped into place with a rename, so readers never observe a
// partially written file. This is the basis for crash-safe `.meta` sidecar
// rewrites and for packfile publish.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), atomicWriteTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	if _, err = temporary.Write(data); err != nil {
		must.Close(temporary, logger)
		must.Succeed(os.Remove(temporary.Name()), "remove temporary file", logger)
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}

	if err = temporary.Close(); err != nil {
		must.Succeed(os.Remove(temporary.Name()), "remove temporary file", logger)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		must.Succeed(os.Remove(temporary.Name()), "remove temporary file", logger)
		return fmt.Errorf("unable to change file permissions: %w", err)
	}

	if err = os.Rename(temporary.Name(), path); err != nil {
		must.Succeed(os.Remove(temporary.Name()), "remove temporary file", logger)
		return fmt.Errorf("unable to rename file into place: %w", err)
	}

	return nil
}

// Canonicalize resolves symlinks and normalizes separators in path. If the
// path does not exist (e.g. it was just removed), it falls back to a purely
// lexical absolute-path normalization so that removal events can still be
// canonicalized relative to their watched root.
func Canonicalize(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(resolved), nil
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("unable to compute absolute path: %w", err)
	}
	return filepath.Clean(absolute), nil
}
