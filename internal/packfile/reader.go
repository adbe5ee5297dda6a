package packfile

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/atelier-assets/atelier/internal/assetid"
)

// Reader is an opened, read-only packfile. Its mmap outlives every slice
// returned by GetArtifacts; callers must not retain those slices past
// Close.
type Reader struct {
	mapped  *mappedFile
	entries []decodedEntry

	indexByUUID  map[assetid.AssetUuid]int
	assetsByPath map[string][]int
}

// Open memory-maps path and parses its header and entry table, building
// the by-uuid and by-path indices.
func Open(path string) (*Reader, error) {
	mapped, err := mapFile(path)
	if err != nil {
		return nil, err
	}

	data := mapped.bytes()
	entryCount, err := readHeader(data)
	if err != nil {
		mapped.close()
		return nil, err
	}

	if len(data) < headerSize+int(entryCount)*8 {
		mapped.close()
		return nil, fmt.Errorf("packfile: truncated entry offset table")
	}
	entryOffsetTable := data[headerSize : headerSize+int(entryCount)*8]
	entries := make([]decodedEntry, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		offset := binary.LittleEndian.Uint64(entryOffsetTable[i*8 : i*8+8])
		if offset >= uint64(len(data)) {
			mapped.close()
			return nil, fmt.Errorf("packfile: entry %d offset out of range", i)
		}
		decoded, _, err := decodeEntry(data[offset:])
		if err != nil {
			mapped.close()
			return nil, fmt.Errorf("packfile: decoding entry %d: %w", i, err)
		}
		entries[i] = decoded
	}

	indexByUUID := make(map[assetid.AssetUuid]int, entryCount)
	assetsByPath := make(map[string][]int, entryCount)
	for i, e := range entries {
		indexByUUID[e.AssetID] = i
		normalized := normalizePath(e.Path)
		assetsByPath[normalized] = append(assetsByPath[normalized], i)
	}

	return &Reader{
		mapped:       mapped,
		entries:      entries,
		indexByUUID:  indexByUUID,
		assetsByPath: assetsByPath,
	}, nil
}

// Entries returns every entry's metadata in file order, used by inspection
// tooling.
func (r *Reader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Entry
	}
	return out
}

// Close unmaps the underlying file. No slice returned by GetArtifacts may
// be used afterward.
func (r *Reader) Close() error {
	return r.mapped.close()
}

// normalizePath normalizes path separators to '/' for lookups, converting
// backslashes on every platform.
func normalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// MetadataRequest carries the set of assets to resolve along with their
// transitive load_deps closure.
type MetadataRequest struct {
	RequestedAssets []assetid.AssetUuid
}

// GetAssetMetadataWithDependencies performs a BFS over load_deps starting
// from request.RequestedAssets, visiting each uuid at most once, and
// returns every resolved entry's metadata. Unknown uuids are silently
// omitted, never an error.
func (r *Reader) GetAssetMetadataWithDependencies(request MetadataRequest) []Entry {
	visited := make(map[assetid.AssetUuid]bool, len(request.RequestedAssets))
	queue := append([]assetid.AssetUuid(nil), request.RequestedAssets...)
	for _, id := range queue {
		visited[id] = true
	}

	var out []Entry
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		idx, ok := r.indexByUUID[id]
		if !ok {
			continue
		}
		entry := r.entries[idx]
		out = append(out, entry.Entry)

		for _, dep := range entry.LoadDeps {
			depUUID, isUUID := dep.Uuid()
			if !isUUID || visited[depUUID] {
				continue
			}
			visited[depUUID] = true
			queue = append(queue, depUUID)
		}
	}
	return out
}

// PathCandidates is the result of resolving one path identifier: the
// normalized path and every asset's metadata indexed under it.
type PathCandidates struct {
	Path   string
	Assets []Entry
}

// GetAssetCandidates resolves a path identifier to every asset indexed
// under it. Returns an error if the path has no entries at all.
func (r *Reader) GetAssetCandidates(path string) (PathCandidates, error) {
	normalized := normalizePath(path)
	indices, ok := r.assetsByPath[normalized]
	if !ok {
		return PathCandidates{}, fmt.Errorf("packfile: no assets found for path %q", path)
	}
	assets := make([]Entry, len(indices))
	for i, idx := range indices {
		assets[i] = r.entries[idx].Entry
	}
	return PathCandidates{Path: normalized, Assets: assets}, nil
}

// GetArtifacts returns the stored blob bytes for each requested asset id.
// The returned slices alias the mmap and must not be retained past Close.
// Any missing id is an error for the whole batch.
func (r *Reader) GetArtifacts(ids []assetid.AssetUuid) ([][]byte, error) {
	out := make([][]byte, len(ids))
	data := r.mapped.bytes()
	for i, id := range ids {
		idx, ok := r.indexByUUID[id]
		if !ok {
			return nil, fmt.Errorf("packfile: asset %s not found", id)
		}
		entry := r.entries[idx]
		start, end := entry.dataOffset, entry.dataOffset+entry.dataLen
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("packfile: asset %s has out-of-range blob extent", id)
		}
		out[i] = data[start:end]
	}
	return out, nil
}
