package importer

import (
	"encoding/binary"

	"github.com/atelier-assets/atelier/internal/assetid"
)

// Fingerprint is the pair of hashes that memoize import work: source_hash
// covers only the raw bytes, import_hash additionally covers everything
// that can change the importer's output for unchanged bytes (its version
// and persisted options/state), so bumping an importer's version or
// editing its options invalidates memoization without touching the file.
type Fingerprint struct {
	SourceHash uint64
	ImportHash uint64
}

// ComputeFingerprint derives a Fingerprint from source content and the
// importer configuration that will process it.
func ComputeFingerprint(sourceBytes []byte, importerVersion uint32, options, state []byte) Fingerprint {
	sourceHash := assetid.HashBytes(sourceBytes)

	buf := make([]byte, 0, 8+4+len(options)+len(state))
	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], importerVersion)

	var sourceHashBytes [8]byte
	binary.LittleEndian.PutUint64(sourceHashBytes[:], sourceHash)

	buf = append(buf, sourceHashBytes[:]...)
	buf = append(buf, versionBytes[:]...)
	buf = append(buf, options...)
	buf = append(buf, state...)

	return Fingerprint{
		SourceHash: sourceHash,
		ImportHash: assetid.HashBytes(buf),
	}
}

// ShouldSkip reports whether importing can be skipped: the hub already
// holds an artifact for this asset whose import_hash matches and whose
// build_deps are all current. currentImportHash and buildDepsFresh are
// supplied by the caller (the asset hub lookup and a freshness check over
// those deps' own fingerprints, respectively).
func ShouldSkip(fp Fingerprint, currentImportHash uint64, haveCurrent bool, buildDepsFresh bool) bool {
	return haveCurrent && buildDepsFresh && fp.ImportHash == currentImportHash
}
