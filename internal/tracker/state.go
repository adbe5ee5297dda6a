// Package tracker implements the file tracker: it applies the directory
// watcher's event stream transactionally to the {source_files, dirty_files,
// rename_file_events} tables, debounces bursts of changes into a single
// Update notification, and reconciles scans against the database so deleted
// or unwatched paths disappear.
package tracker

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/atelier-assets/atelier/internal/watch"
)

// FileState is the in-memory form of the persisted SourceFileInfo and
// DirtyFileInfo records. It is encoded with a small fixed-width binary
// layout rather than a schema-driven format: the field set is frozen and
// the record never crosses a wire boundary.
type FileState struct {
	State        RecordState
	LastModified uint64
	Length       uint64
	FileType     watch.FileType
}

// RecordState is the DirtyFileInfo.state enumeration.
type RecordState uint8

const (
	// StateExists indicates the source file is present on disk as of the
	// last observed metadata.
	StateExists RecordState = iota
	// StateDeleted indicates the source file no longer exists; the
	// record retains the last known metadata for downstream cleanup.
	StateDeleted
)

// sourceInfoSize is the encoded length of a bare SourceFileInfo record
// (LastModified + Length + FileType), without the leading dirty-state byte.
const sourceInfoSize = 8 + 8 + 1

// encodeSourceInfo encodes the SourceFileInfo portion of a FileState as
// persisted under source_files.
func encodeSourceInfo(s FileState) []byte {
	buf := make([]byte, sourceInfoSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.LastModified)
	binary.LittleEndian.PutUint64(buf[8:16], s.Length)
	buf[16] = byte(s.FileType)
	return buf
}

func decodeSourceInfo(buf []byte) (FileState, error) {
	if len(buf) != sourceInfoSize {
		return FileState{}, fmt.Errorf("tracker: malformed source_files record (%d bytes)", len(buf))
	}
	return FileState{
		State:        StateExists,
		LastModified: binary.LittleEndian.Uint64(buf[0:8]),
		Length:       binary.LittleEndian.Uint64(buf[8:16]),
		FileType:     watch.FileType(buf[16]),
	}, nil
}

// encodeDirtyInfo encodes a DirtyFileInfo record: a leading state byte
// followed by the SourceFileInfo it was derived from.
func encodeDirtyInfo(s FileState) []byte {
	buf := make([]byte, 1+sourceInfoSize)
	buf[0] = byte(s.State)
	copy(buf[1:], encodeSourceInfo(s))
	return buf
}

func decodeDirtyInfo(buf []byte) (FileState, error) {
	if len(buf) != 1+sourceInfoSize {
		return FileState{}, fmt.Errorf("tracker: malformed dirty_files record (%d bytes)", len(buf))
	}
	info, err := decodeSourceInfo(buf[1:])
	if err != nil {
		return FileState{}, err
	}
	info.State = RecordState(buf[0])
	return info, nil
}

// metadataToFileState converts a watch.Metadata observation into the
// persisted SourceFileInfo shape.
func metadataToFileState(m watch.Metadata) FileState {
	return FileState{
		State:        StateExists,
		LastModified: m.ModifiedAtNanos(),
		Length:       m.Size,
		FileType:     m.Type,
	}
}

func (s FileState) equalMetadata(other FileState) bool {
	return s.LastModified == other.LastModified &&
		s.Length == other.Length &&
		s.FileType == other.FileType
}

// RenameFileEvent is an entry of the rename_file_events ordered log.
type RenameFileEvent struct {
	Seq uint64
	Src string
	Dst string
}

// encodeRenameEvent encodes the {src, dst} value persisted under
// rename_file_events; the key is the 8-byte little-endian sequence number
// assigned by the caller via storekv.NextSequence.
func encodeRenameEvent(src, dst string) []byte {
	buf := make([]byte, 4+len(src)+len(dst))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(src)))
	copy(buf[4:4+len(src)], src)
	copy(buf[4+len(src):], dst)
	return buf
}

func decodeRenameEvent(seq uint64, buf []byte) (RenameFileEvent, error) {
	if len(buf) < 4 {
		return RenameFileEvent{}, fmt.Errorf("tracker: malformed rename_file_events record (%d bytes)", len(buf))
	}
	srcLen := binary.LittleEndian.Uint32(buf[0:4])
	if uint32(len(buf)) < 4+srcLen {
		return RenameFileEvent{}, fmt.Errorf("tracker: truncated rename_file_events record")
	}
	src := string(buf[4 : 4+srcLen])
	dst := string(buf[4+srcLen:])
	return RenameFileEvent{Seq: seq, Src: src, Dst: dst}, nil
}

// EventKind enumerates the notifications the tracker emits to listeners.
type EventKind uint8

const (
	// EventStart is emitted once a full scan has completed.
	EventStart EventKind = iota
	// EventUpdate is emitted after a debounced batch of changes commits.
	EventUpdate
)

// Event is the payload sent to registered listeners.
type Event struct {
	Kind EventKind
	At   time.Time
}
