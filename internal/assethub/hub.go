package assethub

import (
	"fmt"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/storekv"
)

// Delta is a single change-subscription payload: an asset and the artifact
// that now backs it.
type Delta struct {
	AssetID       assetid.AssetUuid
	NewArtifactID assetid.ArtifactId
}

// Hub maintains the uuid→ArtifactMetadata and path→set<AssetUuid> indices
// over a storekv.Store, and fans out commit deltas to subscribers.
type Hub struct {
	store *storekv.Store

	subsMu sync.Mutex
	subs   []chan Delta
}

// New constructs a Hub over store.
func New(store *storekv.Store) *Hub {
	return &Hub{store: store}
}

// Subscribe returns a channel on which every future Commit's deltas are
// delivered. The channel is buffered; a subscriber that falls behind loses
// events rather than blocking commits, the same best-effort policy the
// file tracker applies to its listeners.
func (h *Hub) Subscribe() <-chan Delta {
	ch := make(chan Delta, 64)
	h.subsMu.Lock()
	h.subs = append(h.subs, ch)
	h.subsMu.Unlock()
	return ch
}

// Commit atomically (i) writes metadata under asset_hub, (ii) updates the
// path index for every path in paths to include assetID, and (iii)
// notifies subscribers. The writes happen within a single storekv write
// transaction: a reader can never observe a partial update, and a
// subscriber notification corresponds exactly to a committed write.
func (h *Hub) Commit(assetID assetid.AssetUuid, metadata ArtifactMetadata, paths []string) error {
	err := h.store.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(storekv.BucketAssetHub).Put(assetID.Bytes(), metadata.encode()); err != nil {
			return fmt.Errorf("put asset_hub[%s]: %w", assetID, err)
		}
		for _, path := range paths {
			if err := addPathIndexEntry(tx, path, assetID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("assethub: commit %s: %w", assetID, err)
	}

	h.broadcast(Delta{AssetID: assetID, NewArtifactID: metadata.ArtifactID})
	return nil
}

func (h *Hub) broadcast(delta Delta) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- delta:
		default:
		}
	}
}

// Get returns the current ArtifactMetadata for assetID, if any.
func (h *Hub) Get(assetID assetid.AssetUuid) (ArtifactMetadata, bool, error) {
	var metadata ArtifactMetadata
	var found bool
	err := h.store.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(storekv.BucketAssetHub).Get(assetID.Bytes())
		if v == nil {
			return nil
		}
		decoded, err := decodeArtifactMetadata(v)
		if err != nil {
			return err
		}
		metadata, found = decoded, true
		return nil
	})
	if err != nil {
		return ArtifactMetadata{}, false, fmt.Errorf("assethub: get %s: %w", assetID, err)
	}
	return metadata, found, nil
}

// Resolve resolves an AssetRef to its current ArtifactMetadata, resolving
// a RefPath via the path index first. A RefPath matching more than one
// asset returns all of them via PathAssets instead; Resolve requires
// exactly one match.
func (h *Hub) Resolve(ref assetid.AssetRef) (ArtifactMetadata, bool, error) {
	if uuid, ok := ref.Uuid(); ok {
		return h.Get(uuid)
	}
	path, _ := ref.Path()
	ids, err := h.PathAssets(path)
	if err != nil {
		return ArtifactMetadata{}, false, err
	}
	if len(ids) != 1 {
		return ArtifactMetadata{}, false, nil
	}
	return h.Get(ids[0])
}

// ForEach calls fn with every committed ArtifactMetadata, in uuid order,
// inside one read transaction. Used by the publish snapshot and inspection
// tooling.
func (h *Hub) ForEach(fn func(ArtifactMetadata) error) error {
	return h.store.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(storekv.BucketAssetHub).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			metadata, err := decodeArtifactMetadata(v)
			if err != nil {
				return fmt.Errorf("assethub: decoding asset_hub[%x]: %w", k, err)
			}
			if err := fn(metadata); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEachPath calls fn with every path index entry, in path order, inside
// one read transaction.
func (h *Hub) ForEachPath(fn func(path string, ids []assetid.AssetUuid) error) error {
	return h.store.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(storekv.BucketAssetPaths).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ids, err := decodeUuidSet(v)
			if err != nil {
				return fmt.Errorf("assethub: decoding asset_hub_paths[%s]: %w", k, err)
			}
			if err := fn(string(k), ids); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemovePath drops path from the path index. The uuid→metadata entries for
// assets that were exported by path are left in place: superseded artifacts
// remain addressable until garbage collected, and the same asset may be
// re-exported from a renamed source.
func (h *Hub) RemovePath(path string) error {
	err := h.store.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(storekv.BucketAssetPaths).Delete([]byte(path)); err != nil {
			return fmt.Errorf("delete asset_hub_paths[%s]: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("assethub: remove path %s: %w", path, err)
	}
	return nil
}

// PathAssets returns every AssetUuid currently indexed under path.
func (h *Hub) PathAssets(path string) ([]assetid.AssetUuid, error) {
	var ids []assetid.AssetUuid
	err := h.store.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(storekv.BucketAssetPaths).Get([]byte(path))
		if v == nil {
			return nil
		}
		decoded, err := decodeUuidSet(v)
		if err != nil {
			return err
		}
		ids = decoded
		return nil
	})
	return ids, err
}

func addPathIndexEntry(tx *bbolt.Tx, path string, assetID assetid.AssetUuid) error {
	bucket := tx.Bucket(storekv.BucketAssetPaths)
	key := []byte(path)

	var ids []assetid.AssetUuid
	if existing := bucket.Get(key); existing != nil {
		decoded, err := decodeUuidSet(existing)
		if err != nil {
			return err
		}
		ids = decoded
	}
	for _, id := range ids {
		if id == assetID {
			return nil
		}
	}
	ids = append(ids, assetID)
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	if err := bucket.Put(key, encodeUuidSet(ids)); err != nil {
		return fmt.Errorf("put asset_hub_paths[%s]: %w", path, err)
	}
	return nil
}

func encodeUuidSet(ids []assetid.AssetUuid) []byte {
	buf := make([]byte, 0, len(ids)*assetid.Size)
	for _, id := range ids {
		buf = append(buf, id.Bytes()...)
	}
	return buf
}

func decodeUuidSet(buf []byte) ([]assetid.AssetUuid, error) {
	if len(buf)%assetid.Size != 0 {
		return nil, fmt.Errorf("assethub: malformed path index entry (%d bytes)", len(buf))
	}
	ids := make([]assetid.AssetUuid, 0, len(buf)/assetid.Size)
	for off := 0; off < len(buf); off += assetid.Size {
		id, err := assetid.AssetUuidFromBytes(buf[off : off+assetid.Size])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
