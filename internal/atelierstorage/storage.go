// Package atelierstorage models the engine-side consumer of this daemon's
// published artifacts. A runtime's asset storage is an external
// collaborator, so only the interface lives here, not a full engine
// integration; InMemoryStorage is a reference implementation for tests and
// examples.
package atelierstorage

import (
	"fmt"
	"sync"

	"github.com/atelier-assets/atelier/internal/assetid"
)

// Storage is the minimal contract an engine-side asset store must
// implement to consume this daemon's output: it is handed raw artifact
// bytes to load, asked to release them on unload, and notified when a
// hot-reload produces a new artifact for an already-loaded asset.
type Storage interface {
	// Load deserializes data (the raw artifact bytes for typeID) and makes
	// it available under assetID at the given version.
	Load(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32, data []byte) error
	// Commit marks version as the current version for assetID: the point
	// at which a load that completed becomes visible, avoiding a frame
	// where a reloading asset is momentarily unloaded.
	Commit(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32)
	// Unload releases the given version of assetID. A storage tracking
	// multiple in-flight versions (to support hot-reload) must apply this
	// only to that specific version.
	Unload(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32)
}

// assetState is one loaded (possibly not-yet-committed) asset.
type assetState struct {
	version uint32
	data    []byte
}

// InMemoryStorage is a reference Storage implementation for tests and
// examples: it keeps loaded and committed bytes per (type, asset) pair in
// memory, with no actual deserialization.
type InMemoryStorage struct {
	mu          sync.RWMutex
	uncommitted map[assetid.AssetTypeId]map[assetid.AssetUuid]assetState
	committed   map[assetid.AssetTypeId]map[assetid.AssetUuid]assetState
}

// NewInMemoryStorage constructs an empty InMemoryStorage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		uncommitted: make(map[assetid.AssetTypeId]map[assetid.AssetUuid]assetState),
		committed:   make(map[assetid.AssetTypeId]map[assetid.AssetUuid]assetState),
	}
}

// Load implements Storage.
func (s *InMemoryStorage) Load(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.uncommitted[typeID]
	if !ok {
		bucket = make(map[assetid.AssetUuid]assetState)
		s.uncommitted[typeID] = bucket
	}
	bucket[assetID] = assetState{version: version, data: append([]byte(nil), data...)}
	return nil
}

// Commit implements Storage.
func (s *InMemoryStorage) Commit(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.uncommitted[typeID][assetID]
	if !ok || state.version != version {
		return
	}
	delete(s.uncommitted[typeID], assetID)

	bucket, ok := s.committed[typeID]
	if !ok {
		bucket = make(map[assetid.AssetUuid]assetState)
		s.committed[typeID] = bucket
	}
	bucket[assetID] = state
}

// Unload implements Storage.
func (s *InMemoryStorage) Unload(typeID assetid.AssetTypeId, assetID assetid.AssetUuid, version uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.uncommitted[typeID][assetID]; ok && state.version == version {
		delete(s.uncommitted[typeID], assetID)
	}
	if state, ok := s.committed[typeID][assetID]; ok && state.version == version {
		delete(s.committed[typeID], assetID)
	}
}

// Get returns the currently committed bytes for assetID under typeID, if
// any, used by tests to assert on load/commit/unload sequencing.
func (s *InMemoryStorage) Get(typeID assetid.AssetTypeId, assetID assetid.AssetUuid) ([]byte, uint32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.committed[typeID][assetID]
	if !ok {
		return nil, 0, false, nil
	}
	return state.data, state.version, true, nil
}

// ErrUnknownAssetType is returned by strict consumers that want to
// distinguish "never loaded" from "wrong type" lookups; InMemoryStorage
// itself never returns it since map lookups on a missing type simply come
// back empty.
var ErrUnknownAssetType = fmt.Errorf("atelierstorage: unknown asset type")
