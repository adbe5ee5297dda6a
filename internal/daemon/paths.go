// Package daemon assembles the asset pipeline and provides the
// single-daemon-instance lock and the on-disk layout of the daemon's data
// directory.
package daemon

import (
	"path/filepath"

	"github.com/atelier-assets/atelier/internal/filesystem"
)

const (
	// lockName is the name of the daemon lock file within the daemon
	// subdirectory of the data directory.
	lockName = "daemon.lock"
	// databaseName is the name of the bbolt database file within the daemon
	// subdirectory, holding every bucket storekv.Open creates.
	databaseName = "atelier.db"
)

// subpath computes a path within the daemon subdirectory of the data
// directory, creating the subdirectory as needed.
func subpath(name string) (string, error) {
	daemonRoot, err := filesystem.Subpath(true, filesystem.DaemonDirectoryName)
	if err != nil {
		return "", err
	}
	return filepath.Join(daemonRoot, name), nil
}

// LockPath computes the path to the daemon lock file.
func LockPath() (string, error) {
	return subpath(lockName)
}

// DatabasePath computes the path to the daemon's bbolt database file.
func DatabasePath() (string, error) {
	return subpath(databaseName)
}
