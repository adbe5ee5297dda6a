// Package storekv wraps the embedded transactional key-value engine behind
// the ordered-byte-keyed-map contract the rest of the daemon depends on:
// snapshot-isolated reads, a single serialized writer, and byte-ordered keys
// within a bucket. It is the thin seam that lets the file tracker, artifact
// cache, and asset hub share one on-disk database file without knowing which
// engine backs it.
package storekv

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names for the daemon's persisted tables.
var (
	BucketSourceFiles   = []byte("source_files")
	BucketDirtyFiles    = []byte("dirty_files")
	BucketRenameEvents  = []byte("rename_file_events")
	BucketArtifactCache = []byte("artifact_cache")
	BucketAssetHub      = []byte("asset_hub")
	BucketAssetPaths    = []byte("asset_hub_paths")
	BucketDaemonState   = []byte("daemon_state")
)

// KeyCurrentPackfile is the daemon_state key recording the file name of the
// most recently published packfile, so housekeeping never prunes it.
var KeyCurrentPackfile = []byte("current_packfile")

var allBuckets = [][]byte{
	BucketSourceFiles,
	BucketDirtyFiles,
	BucketRenameEvents,
	BucketArtifactCache,
	BucketAssetHub,
	BucketAssetPaths,
	BucketDaemonState,
}

// Store is a thin wrapper around a bbolt database that guarantees the
// buckets this daemon depends on exist and exposes transaction helpers with
// the error wrapping conventions used throughout this package.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the database file at path and ensures
// all buckets used by the daemon exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("unable to create bucket %q: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("unable to close database: %w", err)
	}
	return nil
}

// View runs fn inside a read-only, snapshot-isolated transaction. Any number
// of read transactions may run concurrently with each other and with the
// single in-flight write transaction.
func (s *Store) View(fn func(*bbolt.Tx) error) error {
	return s.db.View(fn)
}

// Update runs fn inside a single serialized write transaction and commits it
// if fn returns nil, or rolls it back otherwise, so a failed batch leaves
// on-disk state untouched.
func (s *Store) Update(fn func(*bbolt.Tx) error) error {
	return s.db.Update(fn)
}

// NextSequence returns the next value from the named bucket's monotonic
// sequence counter, used to assign dense, strictly monotonic rename-event
// sequence numbers under the write transaction that appends the event, so
// numbering is globally monotonic across restarts.
func NextSequence(tx *bbolt.Tx, bucket []byte) (uint64, error) {
	b := tx.Bucket(bucket)
	if b == nil {
		return 0, fmt.Errorf("bucket %q does not exist", bucket)
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("unable to advance sequence for bucket %q: %w", bucket, err)
	}
	return seq, nil
}
