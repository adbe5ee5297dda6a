// Package importer implements the source-pair importer: for each dirty
// source path it locates or creates a ".meta" sidecar, invokes the importer
// registered for that file's extension, and produces zero or more typed
// artifacts plus metadata, skipping the work entirely when fingerprinting
// shows nothing changed.
package importer

import (
	"context"
	"io"

	"github.com/atelier-assets/atelier/internal/assetid"
)

// Asset is one importer-produced asset.
type Asset struct {
	ID            assetid.AssetUuid
	SearchTags    []string
	BuildDeps     []assetid.AssetUuid
	LoadDeps      []assetid.AssetUuid
	AssetData     []byte
	BuildPipeline *assetid.AssetUuid
}

// Result is an importer invocation's output.
type Result struct {
	Assets []Asset
}

// Importer converts one source file into assets. Implementations are
// registered in a Registry by file extension and by their own 16-byte
// TypeID.
type Importer interface {
	// TypeID uniquely identifies this importer implementation, independent
	// of any particular asset it produces.
	TypeID() assetid.AssetTypeId
	// Version is bumped whenever Import's output would differ for
	// unchanged input, invalidating every prior fingerprint that used it.
	Version() uint32
	// Import reads source and produces assets. options and state are the
	// opaque YAML payloads persisted in the ".meta" sidecar's
	// ImporterOptions/ImporterState fields. Import returns the (possibly
	// updated) state bytes to persist back to the sidecar: an importer that
	// lazily assigns a stable AssetUuid on first sight of a source returns
	// the state reflecting that assignment so the caller can persist it.
	Import(ctx context.Context, source io.Reader, options, state []byte) (Result, []byte, error)
}

// Registry maps file extensions (without the leading dot, lower-cased) and
// importer type ids to the Importer responsible for them.
type Registry struct {
	byExtension map[string]Importer
	byType      map[assetid.AssetTypeId]Importer
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byExtension: make(map[string]Importer),
		byType:      make(map[assetid.AssetTypeId]Importer),
	}
}

// Register binds ext (e.g. "txt", not ".txt") to imp, and indexes imp by
// its TypeID. A later call for the same extension replaces the earlier
// extension binding.
func (r *Registry) Register(ext string, imp Importer) {
	r.byExtension[ext] = imp
	r.byType[imp.TypeID()] = imp
}

// Lookup returns the importer registered for ext, if any.
func (r *Registry) Lookup(ext string) (Importer, bool) {
	imp, ok := r.byExtension[ext]
	return imp, ok
}

// LookupByType returns the importer with the given type id, if any.
func (r *Registry) LookupByType(id assetid.AssetTypeId) (Importer, bool) {
	imp, ok := r.byType[id]
	return imp, ok
}
