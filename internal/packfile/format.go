// Package packfile implements the packfile: a contiguous, append-only,
// read-only bundle format for publishing a snapshot of the artifact cache
// and asset hub to runtime clients, plus the mmap-based reader that serves
// it with BFS dependency resolution, path lookup, and blob retrieval.
package packfile

import (
	"encoding/binary"
	"fmt"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assetid"
)

// magic identifies an atelier packfile; chosen to be recognizable in a hex
// dump and unlikely to collide with common container formats.
var magic = [4]byte{'A', 'T', 'L', 'R'}

// FormatVersion is bumped whenever the on-disk layout changes
// incompatibly; readers reject any other version.
const FormatVersion = 1

// headerSize is the fixed size of the packfile header: magic(4) +
// version(4) + entry count(4) + reserved(4), padded to an 8-byte boundary
// so the entry offset table that follows starts aligned.
const headerSize = 16

// Entry is one packfile record: a path, the asset metadata it resolves
// to, and the artifact bytes themselves.
type Entry struct {
	Path             string
	AssetID          assetid.AssetUuid
	TypeID           assetid.AssetTypeId
	ArtifactID       assetid.ArtifactId
	BuildDeps        []assetid.AssetRef
	LoadDeps         []assetid.AssetRef
	Compression      artifactcache.Compression
	UncompressedSize uint64
	CompressedSize   uint64
	Data             []byte
}

func writeHeader(buf []byte, entryCount uint32) {
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], entryCount)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}

func readHeader(buf []byte) (entryCount uint32, err error) {
	if len(buf) < headerSize {
		return 0, fmt.Errorf("packfile: truncated header")
	}
	if [4]byte{buf[0], buf[1], buf[2], buf[3]} != magic {
		return 0, fmt.Errorf("packfile: bad magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != FormatVersion {
		return 0, fmt.Errorf("packfile: unsupported format version %d (expected %d)", version, FormatVersion)
	}
	return binary.LittleEndian.Uint32(buf[8:12]), nil
}

// encodeEntry serializes one Entry's metadata record (everything but the
// blob bytes, which are written separately into the blob region and
// referenced by offset/length).
func encodeEntry(e Entry, dataOffset, dataLen uint64) []byte {
	var buf []byte
	buf = appendLenPrefixed(buf, []byte(e.Path))
	buf = append(buf, e.AssetID.Bytes()...)
	buf = append(buf, e.TypeID.Bytes()...)

	var scratch8 [8]byte
	binary.LittleEndian.PutUint64(scratch8[:], uint64(e.ArtifactID))
	buf = append(buf, scratch8[:]...)

	buf = append(buf, byte(e.Compression))
	binary.LittleEndian.PutUint64(scratch8[:], e.UncompressedSize)
	buf = append(buf, scratch8[:]...)
	binary.LittleEndian.PutUint64(scratch8[:], e.CompressedSize)
	buf = append(buf, scratch8[:]...)

	buf = appendRefList(buf, e.BuildDeps)
	buf = appendRefList(buf, e.LoadDeps)

	binary.LittleEndian.PutUint64(scratch8[:], dataOffset)
	buf = append(buf, scratch8[:]...)
	binary.LittleEndian.PutUint64(scratch8[:], dataLen)
	buf = append(buf, scratch8[:]...)

	return buf
}

// decodedEntry is an Entry plus the blob region coordinates, as parsed
// back out of an entry record. Data is populated lazily by the reader.
type decodedEntry struct {
	Entry
	dataOffset uint64
	dataLen    uint64
}

func decodeEntry(buf []byte) (decodedEntry, int, error) {
	off := 0
	path, n, err := readLenPrefixed(buf[off:])
	if err != nil {
		return decodedEntry{}, 0, err
	}
	off += n

	if len(buf) < off+assetid.Size*2 {
		return decodedEntry{}, 0, fmt.Errorf("packfile: truncated entry ids")
	}
	assetID, err := assetid.AssetUuidFromBytes(buf[off : off+assetid.Size])
	if err != nil {
		return decodedEntry{}, 0, err
	}
	off += assetid.Size
	typeID, err := assetid.AssetTypeIdFromBytes(buf[off : off+assetid.Size])
	if err != nil {
		return decodedEntry{}, 0, err
	}
	off += assetid.Size

	if len(buf) < off+8+1+8+8 {
		return decodedEntry{}, 0, fmt.Errorf("packfile: truncated entry fixed fields")
	}
	artifactID := assetid.ArtifactId(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	compression := artifactcache.Compression(buf[off])
	off++
	uncompressedSize := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	compressedSize := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	buildDeps, n, err := readRefList(buf[off:])
	if err != nil {
		return decodedEntry{}, 0, err
	}
	off += n
	loadDeps, n, err := readRefList(buf[off:])
	if err != nil {
		return decodedEntry{}, 0, err
	}
	off += n

	if len(buf) < off+16 {
		return decodedEntry{}, 0, fmt.Errorf("packfile: truncated entry data pointer")
	}
	dataOffset := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	dataLen := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	return decodedEntry{
		Entry: Entry{
			Path:             string(path),
			AssetID:          assetID,
			TypeID:           typeID,
			ArtifactID:       artifactID,
			BuildDeps:        buildDeps,
			LoadDeps:         loadDeps,
			Compression:      compression,
			UncompressedSize: uncompressedSize,
			CompressedSize:   compressedSize,
		},
		dataOffset: dataOffset,
		dataLen:    dataLen,
	}, off, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readLenPrefixed(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("packfile: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if uint32(len(buf)) < 4+n {
		return nil, 0, fmt.Errorf("packfile: truncated length-prefixed data")
	}
	return buf[4 : 4+n], 4 + int(n), nil
}

func appendRefList(buf []byte, refs []assetid.AssetRef) []byte {
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(refs)))
	buf = append(buf, countBuf[:]...)
	for _, ref := range refs {
		if uuid, ok := ref.Uuid(); ok {
			buf = append(buf, byte(assetid.RefUuid))
			buf = append(buf, uuid.Bytes()...)
			continue
		}
		path, _ := ref.Path()
		buf = append(buf, byte(assetid.RefPath))
		buf = appendLenPrefixed(buf, []byte(path))
	}
	return buf
}

func readRefList(buf []byte) ([]assetid.AssetRef, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("packfile: truncated ref list count")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	refs := make([]assetid.AssetRef, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < off+1 {
			return nil, 0, fmt.Errorf("packfile: truncated ref tag")
		}
		switch assetid.RefKind(buf[off]) {
		case assetid.RefUuid:
			if len(buf) < off+1+assetid.Size {
				return nil, 0, fmt.Errorf("packfile: truncated ref uuid")
			}
			uuid, err := assetid.AssetUuidFromBytes(buf[off+1 : off+1+assetid.Size])
			if err != nil {
				return nil, 0, err
			}
			refs = append(refs, assetid.NewUuidRef(uuid))
			off += 1 + assetid.Size
		case assetid.RefPath:
			path, n, err := readLenPrefixed(buf[off+1:])
			if err != nil {
				return nil, 0, err
			}
			refs = append(refs, assetid.NewPathRef(string(path)))
			off += 1 + n
		default:
			return nil, 0, fmt.Errorf("packfile: unknown ref kind %d", buf[off])
		}
	}
	return refs, off, nil
}
