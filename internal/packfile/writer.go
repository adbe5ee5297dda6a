package packfile

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
)

// align8 rounds n up to the next multiple of 8; blob offsets within the
// pack are always 8-byte aligned.
func align8(n int) int {
	return (n + 7) &^ 7
}

// Write publishes entries as a single packfile at path, atomically (via
// filesystem.WriteFileAtomic) so readers never observe a partially
// written bundle. This is the publish step: a point-in-time snapshot of
// the artifact cache and asset hub, assembled by the caller and handed to
// Write as a flat entry list.
func Write(path string, entries []Entry, logger *logging.Logger) error {
	// Pass 1: lay out the entry table, computing each entry's encoded
	// bytes so we know the blob region's starting offset in advance.
	encodedEntries := make([][]byte, len(entries))
	tableSize := 0
	for i, e := range entries {
		// Placeholder data pointer; patched in pass 2 once the blob
		// region's base offset is known.
		encodedEntries[i] = encodeEntry(e, 0, uint64(len(e.Data)))
		tableSize += len(encodedEntries[i])
	}

	entryOffsetTableSize := len(entries) * 8
	blobRegionStart := align8(headerSize + entryOffsetTableSize + tableSize)

	out := make([]byte, 0, blobRegionStart+totalBlobSize(entries))
	out = append(out, make([]byte, headerSize)...)
	writeHeader(out[0:headerSize], uint32(len(entries)))

	offsetTable := make([]byte, entryOffsetTableSize)
	out = append(out, offsetTable...)

	blobCursor := blobRegionStart
	for i, e := range entries {
		entryOffset := len(out)
		binary.LittleEndian.PutUint64(out[headerSize+i*8:headerSize+i*8+8], uint64(entryOffset))

		blobCursor = align8(blobCursor)
		encoded := encodeEntry(e, uint64(blobCursor), uint64(len(e.Data)))
		out = append(out, encoded...)
		blobCursor += len(e.Data)
	}

	if pad := blobRegionStart - len(out); pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	for _, e := range entries {
		if pad := align8(len(out)) - len(out); pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
		out = append(out, e.Data...)
	}

	return filesystem.WriteFileAtomic(path, out, 0644, logger)
}

func totalBlobSize(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += len(e.Data)
	}
	return total
}

// Stat reports the on-disk size of an existing packfile, used by
// inspection tooling.
func Stat(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("packfile: stat %s: %w", path, err)
	}
	return info.Size(), nil
}
