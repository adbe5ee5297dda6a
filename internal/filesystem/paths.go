package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DataDirectoryName is the name of this daemon's data directory inside
	// the user's home directory.
	DataDirectoryName = ".atelier"

	// DaemonDirectoryName is the daemon subdirectory within the data
	// directory, holding the lock file and the bbolt databases.
	DaemonDirectoryName = "daemon"

	// CachesDirectoryName is the subdirectory holding published packfiles.
	CachesDirectoryName = "caches"
)

// HomeDirectory is the cached path to the current user's home directory.
var HomeDirectory string

// DataDirectoryPath is the path to this daemon's data directory. It can be
// overridden (e.g. by a CLI flag or test) before any call to Subpath.
var DataDirectoryPath string

func init() {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// A missing home directory is not fatal: callers can still operate
		// against an explicitly configured data directory, so eager
		// resolution is best-effort only.
		return
	}
	HomeDirectory = home
	DataDirectoryPath = filepath.Join(home, DataDirectoryName)
}

// Subpath computes (and optionally creates) a subpath of the data
// directory.
func Subpath(create bool, pathComponents ...string) (string, error) {
	if DataDirectoryPath == "" {
		return "", fmt.Errorf("unable to determine data directory (no home directory and none configured)")
	}
	result := filepath.Join(DataDirectoryPath, filepath.Join(pathComponents...))
	if create {
		if err := os.MkdirAll(result, 0700); err != nil {
			return "", fmt.Errorf("unable to create subpath: %w", err)
		}
	}
	return result, nil
}
