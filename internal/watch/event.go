package watch

import "time"

// FileType classifies the kind of filesystem entry a Metadata describes.
type FileType uint8

const (
	// FileTypeFile indicates a regular file.
	FileTypeFile FileType = iota
	// FileTypeDirectory indicates a directory.
	FileTypeDirectory
	// FileTypeSymlink indicates a symbolic link.
	FileTypeSymlink
)

// String renders the file type for diagnostics.
func (t FileType) String() string {
	switch t {
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Metadata is the watcher's view of a path's last-observed attributes. It
// mirrors the tracker's persisted SourceFileInfo, but is kept as a separate
// type here since the watcher has no notion of persistence.
type Metadata struct {
	// ModifiedAt is the last-modified time, reported with nanosecond
	// precision.
	ModifiedAt time.Time
	// Size is the file length in bytes (meaningless for directories).
	Size uint64
	// Type classifies the entry.
	Type FileType
}

// ModifiedAtNanos returns ModifiedAt as epoch nanoseconds, the on-disk
// representation used by the tracker's SourceFileInfo records.
func (m Metadata) ModifiedAtNanos() uint64 {
	return uint64(m.ModifiedAt.UnixNano())
}

// EventKind enumerates the kinds of event a watcher emits.
type EventKind uint8

const (
	// EventUpdated indicates content or metadata differs from prior.
	EventUpdated EventKind = iota
	// EventRenamed indicates an atomic rename within the watched set.
	EventRenamed
	// EventRemoved indicates a path no longer exists.
	EventRemoved
	// EventFileError indicates a recoverable or fatal I/O error.
	EventFileError
	// EventScanStart brackets the beginning of an initial or re-scan.
	EventScanStart
	// EventScanEnd brackets the end of a scan, carrying the current set of
	// watched roots.
	EventScanEnd
)

// Event is the watcher's output type. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind EventKind

	// Path is the canonicalized path for Updated/Removed/FileError, or the
	// destination path for Renamed.
	Path string
	// OldPath is the source path for Renamed.
	OldPath string
	// Metadata is populated for Updated and Renamed.
	Metadata Metadata

	// Err is populated for FileError.
	Err error
	// Fatal indicates a FileError that terminated the watcher (losing the
	// underlying OS watch handle); the event stream is closed immediately
	// after such an event.
	Fatal bool

	// Root is populated for ScanStart/ScanEnd: the root directory that the
	// scan concerns.
	Root string
	// WatchedRoots is populated for ScanEnd: the current complete set of
	// watched roots, so the File Tracker can prune entries belonging to
	// directories no longer watched.
	WatchedRoots []string
}
