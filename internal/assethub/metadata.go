// Package assethub implements the asset hub: the authoritative
// uuid→current-ArtifactMetadata index and the path→set<AssetUuid> index,
// plus a change-subscription channel delivering {asset_uuid,
// new_artifact_id} deltas atomically with the underlying commit.
package assethub

import (
	"encoding/binary"
	"fmt"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assetid"
)

// ArtifactMetadata describes one produced artifact: its content-addressed
// identity, the asset it backs, its dependency lists, and how its bytes are
// stored.
type ArtifactMetadata struct {
	ArtifactID       assetid.ArtifactId
	AssetID          assetid.AssetUuid
	BuildDeps        []assetid.AssetRef
	LoadDeps         []assetid.AssetRef
	Compression      artifactcache.Compression
	UncompressedSize uint64
	CompressedSize   uint64
	TypeID           assetid.AssetTypeId
}

// encode serializes ArtifactMetadata for storage under asset_hub. The
// layout is fixed-width where possible and length-prefixed for the
// variable ref lists; the record never crosses a wire boundary, so no
// schema framework is involved.
func (m ArtifactMetadata) encode() []byte {
	var buf []byte
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], uint64(m.ArtifactID))
	buf = append(buf, scratch[:]...)
	buf = append(buf, m.AssetID.Bytes()...)
	buf = append(buf, byte(m.Compression))
	binary.LittleEndian.PutUint64(scratch[:], m.UncompressedSize)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], m.CompressedSize)
	buf = append(buf, scratch[:]...)
	buf = append(buf, m.TypeID.Bytes()...)

	buf = append(buf, encodeRefList(m.BuildDeps)...)
	buf = append(buf, encodeRefList(m.LoadDeps)...)
	return buf
}

func decodeArtifactMetadata(buf []byte) (ArtifactMetadata, error) {
	const fixedLen = 8 + assetid.Size + 1 + 8 + 8 + assetid.Size
	if len(buf) < fixedLen {
		return ArtifactMetadata{}, fmt.Errorf("assethub: truncated metadata record (%d bytes)", len(buf))
	}
	var m ArtifactMetadata
	off := 0
	m.ArtifactID = assetid.ArtifactId(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	assetUUID, err := assetid.AssetUuidFromBytes(buf[off : off+assetid.Size])
	if err != nil {
		return ArtifactMetadata{}, err
	}
	m.AssetID = assetUUID
	off += assetid.Size
	m.Compression = artifactcache.Compression(buf[off])
	off++
	m.UncompressedSize = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	m.CompressedSize = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	typeID, err := assetid.AssetTypeIdFromBytes(buf[off : off+assetid.Size])
	if err != nil {
		return ArtifactMetadata{}, err
	}
	m.TypeID = typeID
	off += assetid.Size

	buildDeps, n, err := decodeRefList(buf[off:])
	if err != nil {
		return ArtifactMetadata{}, err
	}
	m.BuildDeps = buildDeps
	off += n

	loadDeps, _, err := decodeRefList(buf[off:])
	if err != nil {
		return ArtifactMetadata{}, err
	}
	m.LoadDeps = loadDeps

	return m, nil
}

// encodeRefList encodes a []assetid.AssetRef as a 4-byte count followed by
// each ref: a one-byte kind tag, then either 16 uuid bytes or a 4-byte
// length-prefixed path string.
func encodeRefList(refs []assetid.AssetRef) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(refs)))
	buf = append(buf, countBuf[:]...)
	for _, ref := range refs {
		buf = append(buf, encodeRef(ref)...)
	}
	return buf
}

func encodeRef(ref assetid.AssetRef) []byte {
	if uuid, ok := ref.Uuid(); ok {
		out := make([]byte, 1+assetid.Size)
		out[0] = byte(assetid.RefUuid)
		copy(out[1:], uuid.Bytes())
		return out
	}
	path, _ := ref.Path()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(path)))
	out := make([]byte, 0, 1+4+len(path))
	out = append(out, byte(assetid.RefPath))
	out = append(out, lenBuf[:]...)
	out = append(out, path...)
	return out
}

func decodeRefList(buf []byte) ([]assetid.AssetRef, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("assethub: truncated ref list count")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	refs := make([]assetid.AssetRef, 0, count)
	for i := uint32(0); i < count; i++ {
		ref, n, err := decodeRef(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		refs = append(refs, ref)
		off += n
	}
	return refs, off, nil
}

func decodeRef(buf []byte) (assetid.AssetRef, int, error) {
	if len(buf) < 1 {
		return assetid.AssetRef{}, 0, fmt.Errorf("assethub: truncated ref tag")
	}
	switch assetid.RefKind(buf[0]) {
	case assetid.RefUuid:
		if len(buf) < 1+assetid.Size {
			return assetid.AssetRef{}, 0, fmt.Errorf("assethub: truncated ref uuid")
		}
		uuid, err := assetid.AssetUuidFromBytes(buf[1 : 1+assetid.Size])
		if err != nil {
			return assetid.AssetRef{}, 0, err
		}
		return assetid.NewUuidRef(uuid), 1 + assetid.Size, nil
	case assetid.RefPath:
		if len(buf) < 5 {
			return assetid.AssetRef{}, 0, fmt.Errorf("assethub: truncated ref path length")
		}
		pathLen := binary.LittleEndian.Uint32(buf[1:5])
		if uint32(len(buf)) < 5+pathLen {
			return assetid.AssetRef{}, 0, fmt.Errorf("assethub: truncated ref path")
		}
		path := string(buf[5 : 5+pathLen])
		return assetid.NewPathRef(path), 5 + int(pathLen), nil
	default:
		return assetid.AssetRef{}, 0, fmt.Errorf("assethub: unknown ref kind %d", buf[0])
	}
}
