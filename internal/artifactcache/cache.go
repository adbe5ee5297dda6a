// Package artifactcache implements the artifact cache: an immutable,
// content-addressed blob store keyed by ArtifactId, with idempotent writes
// and no eviction. Nothing in the daemon removes cached blobs; Delete and
// ForEachID are the only removal and enumeration entry points.
package artifactcache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/storekv"
)

// Compression identifies how a cached blob's bytes are framed.
type Compression uint8

const (
	// CompressionNone stores the artifact's raw bytes verbatim.
	CompressionNone Compression = iota
	// CompressionLz4 frames the artifact with pierrec/lz4.
	CompressionLz4
)

// DefaultCompressionThreshold is the default minimum uncompressed size at
// which Put chooses to Lz4-frame a blob rather than store it raw; small
// artifacts rarely compress well enough to be worth the framing overhead.
const DefaultCompressionThreshold = 256

// Cache wraps a storekv.Store bucket as the artifact blob store.
type Cache struct {
	store     *storekv.Store
	threshold int
}

// New constructs a Cache over store. A non-positive threshold selects
// DefaultCompressionThreshold.
func New(store *storekv.Store, threshold int) *Cache {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &Cache{store: store, threshold: threshold}
}

// Stats describes a stored artifact's size accounting, mirroring the
// uncompressed_size/compressed_size/compression fields of ArtifactMetadata.
type Stats struct {
	Compression      Compression
	UncompressedSize uint64
	CompressedSize   uint64
}

// Put stores data under id, idempotently: a second Put for the same id
// with identical bytes simply rewrites the same value. It chooses Lz4
// framing for blobs at or above the cache's compression threshold.
func (c *Cache) Put(id assetid.ArtifactId, data []byte) (Stats, error) {
	stats := Stats{UncompressedSize: uint64(len(data))}

	stored := data
	stats.Compression = CompressionNone
	if len(data) >= c.threshold {
		compressed, err := compressLz4(data)
		if err == nil && len(compressed) < len(data) {
			stored = compressed
			stats.Compression = CompressionLz4
		}
	}
	stats.CompressedSize = uint64(len(stored))

	err := c.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(storekv.BucketArtifactCache).Put(id.KeyBytes(), framedValue(stats.Compression, stored))
	})
	if err != nil {
		return Stats{}, fmt.Errorf("artifactcache: put %v: %w", id, err)
	}
	return stats, nil
}

// Get returns the decompressed bytes stored under id, or (nil, false) if
// absent.
func (c *Cache) Get(id assetid.ArtifactId) ([]byte, bool, error) {
	var raw []byte
	err := c.store.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(storekv.BucketArtifactCache).Get(id.KeyBytes())
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("artifactcache: get %v: %w", id, err)
	}
	if raw == nil {
		return nil, false, nil
	}

	compression, payload, err := unframeValue(raw)
	if err != nil {
		return nil, false, fmt.Errorf("artifactcache: malformed record for %v: %w", id, err)
	}
	if compression == CompressionNone {
		return payload, true, nil
	}
	decompressed, err := decompressLz4(payload)
	if err != nil {
		return nil, false, fmt.Errorf("artifactcache: decompressing %v: %w", id, err)
	}
	return decompressed, true, nil
}

// Contains reports whether id has a stored blob, without reading or
// decompressing it.
func (c *Cache) Contains(id assetid.ArtifactId) (bool, error) {
	var found bool
	err := c.store.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(storekv.BucketArtifactCache).Get(id.KeyBytes()) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("artifactcache: contains %v: %w", id, err)
	}
	return found, nil
}

// Delete removes id's blob. It does not check whether any AssetHub entry
// still refers to id.
func (c *Cache) Delete(id assetid.ArtifactId) error {
	err := c.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(storekv.BucketArtifactCache).Delete(id.KeyBytes())
	})
	if err != nil {
		return fmt.Errorf("artifactcache: delete %v: %w", id, err)
	}
	return nil
}

// ForEachID calls fn with every ArtifactId currently stored, stopping at
// the first error fn returns.
func (c *Cache) ForEachID(fn func(assetid.ArtifactId) error) error {
	return c.store.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(storekv.BucketArtifactCache).Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if err := fn(assetid.ArtifactIdFromKeyBytes(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// framedValue prepends a one-byte compression tag to stored, the on-disk
// shape of an artifact_cache value.
func framedValue(compression Compression, stored []byte) []byte {
	out := make([]byte, 1+len(stored))
	out[0] = byte(compression)
	copy(out[1:], stored)
	return out
}

func unframeValue(raw []byte) (Compression, []byte, error) {
	if len(raw) < 1 {
		return 0, nil, fmt.Errorf("record too short")
	}
	return Compression(raw[0]), raw[1:], nil
}

func compressLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLz4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
