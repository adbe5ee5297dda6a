// Package housekeeping performs periodic cleanup of stale on-disk state: a
// handful of independent sweep functions invoked both once at startup and
// on a recurring ticker.
package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/must"
)

const (
	// maximumTempFileAge is the maximum time a stale atomic-write temporary
	// file (left behind by a crash between create and rename, see
	// filesystem.WriteFileAtomic) is allowed to persist before removal.
	maximumTempFileAge = 24 * time.Hour

	// maximumOrphanedPackfileAge is the maximum age of a file in the caches
	// directory that isn't the daemon's current published packfile.
	maximumOrphanedPackfileAge = 7 * 24 * time.Hour

	// tempFilePrefix matches filesystem.WriteFileAtomic's temporary file
	// naming so housekeeping only removes files it recognizes as its own.
	tempFilePrefix = ".atelier-atomic-write-"
)

// Housekeep runs every sweep once. currentPackfileName, if non-empty, names
// the file in the caches directory that must never be pruned regardless of
// age (the daemon's current published packfile).
func Housekeep(logger *logging.Logger, watchDirectories []string, currentPackfileName string) {
	for _, root := range watchDirectories {
		housekeepStaleTempFiles(root, logger)
	}
	housekeepOrphanedPackfiles(currentPackfileName, logger)
}

// housekeepStaleTempFiles removes abandoned WriteFileAtomic temporary files
// under root older than maximumTempFileAge. A crash between os.CreateTemp
// and the final os.Rename leaves one of these behind; since `.meta` sidecar
// rewrites use the same directory as the file they replace, the sweep walks
// every watched root rather than a single fixed directory.
func housekeepStaleTempFiles(root string, logger *logging.Logger) {
	now := time.Now()
	filepath.Walk(root, func(fullPath string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasPrefix(info.Name(), tempFilePrefix) {
			return nil
		}
		if now.Sub(info.ModTime()) > maximumTempFileAge {
			must.Succeed(os.Remove(fullPath), "remove stale temporary file "+fullPath, logger)
		}
		return nil
	})
}

// housekeepOrphanedPackfiles removes files from the caches directory other
// than keepName that have aged past maximumOrphanedPackfileAge, cleaning up
// after interrupted publishes that left a previous packfile generation in
// place: publish replaces the packfile atomically, but does not itself
// delete superseded generations.
func housekeepOrphanedPackfiles(keepName string, logger *logging.Logger) {
	cachesDir, err := filesystem.Subpath(false, filesystem.CachesDirectoryName)
	if err != nil {
		return
	}
	entries, err := os.ReadDir(cachesDir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == keepName {
			continue
		}
		fullPath := filepath.Join(cachesDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maximumOrphanedPackfileAge {
			must.Succeed(os.Remove(fullPath), "remove orphaned packfile "+fullPath, logger)
		}
	}
}

// housekeepingInterval is the interval at which Run invokes Housekeep.
const housekeepingInterval = 1 * time.Hour

// Run performs an initial housekeeping pass and then invokes Housekeep on
// every tick until ctx is cancelled. It is designed to run as a background
// goroutine for the lifetime of the daemon process.
func Run(ctx context.Context, logger *logging.Logger, watchDirectories []string, currentPackfileName func() string) {
	logger.Info("performing initial housekeeping")
	Housekeep(logger, watchDirectories, currentPackfileName())

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("performing regular housekeeping")
			Housekeep(logger, watchDirectories, currentPackfileName())
		}
	}
}
