package assetid

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ArtifactId is the 64-bit content-addressed identity of an artifact,
// derived from an importer's import_hash, the owning AssetUuid, and the
// sorted, de-duplicated set of build-dependency AssetUuids.
type ArtifactId uint64

// HashVersion pins the hash construction used to derive ArtifactId and
// source/import fingerprints: xxhash64 (XXH64) via
// github.com/cespare/xxhash/v2. Bumping this constant is a breaking change
// for any existing on-disk cache.
const HashVersion = 1

// DeriveArtifactId computes the ArtifactId for an asset, given the
// importer's import_hash for its source and the asset's build dependencies.
// It is invariant under permutation and duplication of deps, since deps are
// stable-sorted and de-duplicated before hashing.
func DeriveArtifactId(importHash uint64, asset AssetUuid, deps []AssetUuid) ArtifactId {
	sorted := sortedUniqueDeps(deps)

	digest := xxhash.New()
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], importHash)
	digest.Write(scratch[:])
	digest.Write(asset[:])
	for _, dep := range sorted {
		digest.Write(dep[:])
	}

	return ArtifactId(digest.Sum64())
}

// sortedUniqueDeps returns a stable-sorted, de-duplicated copy of deps.
func sortedUniqueDeps(deps []AssetUuid) []AssetUuid {
	if len(deps) == 0 {
		return nil
	}
	sorted := make([]AssetUuid, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	unique := sorted[:1]
	for _, dep := range sorted[1:] {
		if dep.Compare(unique[len(unique)-1]) != 0 {
			unique = append(unique, dep)
		}
	}
	return unique
}

// HashBytes computes the frozen stable 64-bit hash over arbitrary bytes. It
// underlies both source_hash (over raw source bytes) and import_hash (over
// source_hash || importer_version || serialized options || serialized state)
// fingerprinting in the importer.
func HashBytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// KeyBytes encodes an ArtifactId as an 8-byte little-endian key, the form
// used by the artifact_cache table.
func (id ArtifactId) KeyBytes() []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// ArtifactIdFromKeyBytes decodes an 8-byte little-endian key into an
// ArtifactId.
func ArtifactIdFromKeyBytes(b []byte) ArtifactId {
	return ArtifactId(binary.LittleEndian.Uint64(b))
}
