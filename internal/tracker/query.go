package tracker

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/storekv"
	"github.com/atelier-assets/atelier/internal/watch"
)

// PathState pairs a path with its persisted FileState, the shape consumers
// (the importer, inspection tooling) actually want rather than a bare
// FileState keyed implicitly by cursor position.
type PathState struct {
	Path string
	FileState
}

// ReadDirtyFiles returns every entry of the dirty_files table, in
// ascending path order, within tx. Callers that need to process these and
// later clear them should do so in the same write transaction they obtain
// this snapshot from.
func ReadDirtyFiles(tx *bbolt.Tx) ([]PathState, error) {
	var out []PathState
	c := tx.Bucket(storekv.BucketDirtyFiles).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		state, err := decodeDirtyInfo(v)
		if err != nil {
			return nil, fmt.Errorf("tracker: reading dirty_files[%s]: %w", k, err)
		}
		out = append(out, PathState{Path: string(k), FileState: state})
	}
	return out, nil
}

// ReadAllFiles returns every entry of the source_files table, in ascending
// path order.
func ReadAllFiles(tx *bbolt.Tx) ([]PathState, error) {
	var out []PathState
	c := tx.Bucket(storekv.BucketSourceFiles).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		state, err := decodeSourceInfo(v)
		if err != nil {
			return nil, fmt.Errorf("tracker: reading source_files[%s]: %w", k, err)
		}
		out = append(out, PathState{Path: string(k), FileState: state})
	}
	return out, nil
}

// GetFileState returns the current source_files entry for path, if any.
func GetFileState(tx *bbolt.Tx, path string) (PathState, bool, error) {
	v := tx.Bucket(storekv.BucketSourceFiles).Get([]byte(path))
	if v == nil {
		return PathState{}, false, nil
	}
	state, err := decodeSourceInfo(v)
	if err != nil {
		return PathState{}, false, err
	}
	return PathState{Path: path, FileState: state}, true, nil
}

// GetDirtyFileState returns the current dirty_files entry for path, if any.
func GetDirtyFileState(tx *bbolt.Tx, path string) (PathState, bool, error) {
	v := tx.Bucket(storekv.BucketDirtyFiles).Get([]byte(path))
	if v == nil {
		return PathState{}, false, nil
	}
	state, err := decodeDirtyInfo(v)
	if err != nil {
		return PathState{}, false, err
	}
	return PathState{Path: path, FileState: state}, true, nil
}

// DeleteDirtyFileState clears path's entry in dirty_files, called by the
// importer once it has successfully processed the corresponding source. The
// dirty bit is cleared only on a successful import, so a failed import is
// retried on the next tick.
func DeleteDirtyFileState(tx *bbolt.Tx, path string) error {
	if err := tx.Bucket(storekv.BucketDirtyFiles).Delete([]byte(path)); err != nil {
		return fmt.Errorf("tracker: delete dirty_files[%s]: %w", path, err)
	}
	return nil
}

// ReadRenameEvents returns every entry of the rename_file_events ordered
// log, in ascending sequence order.
func ReadRenameEvents(tx *bbolt.Tx) ([]RenameFileEvent, error) {
	var out []RenameFileEvent
	c := tx.Bucket(storekv.BucketRenameEvents).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		seq := decodeSeqKey(k)
		evt, err := decodeRenameEvent(seq, v)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ClearRenameEvents empties the rename_file_events table. The daemon's
// import loop does not call it, so the log is kept until a caller does.
func ClearRenameEvents(tx *bbolt.Tx) error {
	bucket := tx.Bucket(storekv.BucketRenameEvents)
	c := bucket.Cursor()
	var keys [][]byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return fmt.Errorf("tracker: clear rename_file_events: %w", err)
		}
	}
	return nil
}

func decodeSeqKey(k []byte) uint64 {
	return binary.LittleEndian.Uint64(k)
}

// AddDirtyFile marks path dirty out-of-band, independent of the watcher
// (e.g. an operator-triggered "force reimport"). If path no longer exists,
// it is recorded as Deleted; otherwise its current on-disk metadata is
// captured.
func AddDirtyFile(tx *bbolt.Tx, path string) error {
	canonical, err := filesystem.Canonicalize(path)
	if err != nil {
		return fmt.Errorf("tracker: canonicalize %s: %w", path, err)
	}
	info, err := os.Lstat(canonical)
	if os.IsNotExist(err) {
		_, err := removePath(tx, canonical)
		return err
	}
	if err != nil {
		return fmt.Errorf("tracker: stat %s: %w", canonical, err)
	}

	fileType := watch.FileTypeFile
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		fileType = watch.FileTypeSymlink
	case info.IsDir():
		fileType = watch.FileTypeDirectory
	}
	state := FileState{
		State:        StateExists,
		LastModified: uint64(info.ModTime().UnixNano()),
		Length:       uint64(info.Size()),
		FileType:     fileType,
	}

	key := []byte(canonical)
	if err := tx.Bucket(storekv.BucketSourceFiles).Put(key, encodeSourceInfo(state)); err != nil {
		return fmt.Errorf("tracker: put source_files[%s]: %w", canonical, err)
	}
	if err := tx.Bucket(storekv.BucketDirtyFiles).Put(key, encodeDirtyInfo(state)); err != nil {
		return fmt.Errorf("tracker: put dirty_files[%s]: %w", canonical, err)
	}
	return nil
}
