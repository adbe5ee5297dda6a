// Package locking provides cross-platform advisory file locking, used to
// enforce the daemon's single-writer precondition: one daemon instance per
// database directory. `.meta` sidecar writes are not locked.
package locking

import (
	"fmt"
	"os"
)

// Locker provides file locking facilities.
type Locker struct {
	// file is the underlying file object to be locked.
	file *os.File
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}
	return &Locker{file: file}, nil
}

// Close closes the underlying lock file. It does not release the lock if
// still held; callers should Unlock first.
func (l *Locker) Close() error {
	return l.file.Close()
}
