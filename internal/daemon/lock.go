package daemon

import (
	"fmt"

	"github.com/atelier-assets/atelier/internal/filesystem/locking"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/must"
)

// Lock represents the global daemon lock: only one daemon process may hold
// it for a given data directory, since the database has a single-writer
// precondition.
type Lock struct {
	locker *locking.Locker
	logger *logging.Logger
}

// AcquireLock attempts to acquire the daemon lock, failing immediately
// (non-blocking) if another daemon instance already holds it.
func AcquireLock(logger *logging.Logger) (*Lock, error) {
	lockPath, err := LockPath()
	if err != nil {
		return nil, fmt.Errorf("unable to compute daemon lock path: %w", err)
	}

	locker, err := locking.NewLocker(lockPath, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to create daemon file locker: %w", err)
	}
	if err = locker.Lock(false); err != nil {
		must.Close(locker, logger)
		return nil, fmt.Errorf("unable to acquire daemon lock (daemon already running?): %w", err)
	}

	return &Lock{locker: locker, logger: logger}, nil
}

// Release releases the daemon lock and closes the underlying lock file.
func (l *Lock) Release() error {
	if err := l.locker.Unlock(); err != nil {
		must.Close(l.locker, l.logger)
		return fmt.Errorf("unable to release daemon lock: %w", err)
	}
	if err := l.locker.Close(); err != nil {
		return fmt.Errorf("unable to close daemon locker: %w", err)
	}
	return nil
}
