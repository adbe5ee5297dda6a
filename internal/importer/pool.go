package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/meta"
)

// SkipFunc reports whether an import of asset can be skipped for the given
// fingerprint: the caller supplies the hub-backed memoization check (does
// the hub already hold a current artifact whose derivation used this
// import_hash?).
type SkipFunc func(asset assetid.AssetUuid, fp Fingerprint) bool

// Pool runs imports for dirty source paths: per-path work is serialized
// (at most one active import per source path), cross-path work runs in
// parallel up to a configured degree.
type Pool struct {
	registry *Registry
	sem      *semaphore.Weighted
	skip     SkipFunc
	logger   *logging.Logger

	inFlightMu sync.Mutex
	inFlight   map[string]chan struct{}
}

// NewPool constructs a Pool bounding cross-path concurrency at degree.
// skip may be nil, in which case every dirty path is imported
// unconditionally.
func NewPool(registry *Registry, degree int64, skip SkipFunc, logger *logging.Logger) *Pool {
	if degree < 1 {
		degree = 1
	}
	return &Pool{
		registry: registry,
		sem:      semaphore.NewWeighted(degree),
		skip:     skip,
		logger:   logger.Sublogger("importer"),
		inFlight: make(map[string]chan struct{}),
	}
}

// Outcome is the result of importing a single source path.
type Outcome struct {
	Path        string
	Result      Result
	Fingerprint Fingerprint
	TypeID      assetid.AssetTypeId
	Skipped     bool
	Err         error
}

// ImportPath imports a single source path, serialized against any other
// in-flight import of the same path and bounded against the pool's
// cross-path concurrency limit. ImportPath itself does not touch the
// dirty_files table — clearing the dirty bit (or leaving it set for retry
// on failure) is the caller's responsibility once it inspects Outcome.Err.
func (p *Pool) ImportPath(ctx context.Context, path string) Outcome {
	release, err := p.acquirePath(ctx, path)
	if err != nil {
		return Outcome{Path: path, Err: err}
	}
	defer release()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Path: path, Err: err}
	}
	defer p.sem.Release(1)

	outcome := p.doImport(ctx, path)
	if outcome.Err != nil {
		p.logger.Warnf("import failed for %s: %v", path, outcome.Err)
	}
	return outcome
}

// acquirePath blocks until no other import of path is in flight, then
// marks it in-flight, returning a release func. This is a simple mutual
// exclusion per path key rather than a true lock, since imports are
// expected to be short-lived and the wait set is bounded by the number of
// currently dirty paths.
func (p *Pool) acquirePath(ctx context.Context, path string) (func(), error) {
	for {
		p.inFlightMu.Lock()
		wait, busy := p.inFlight[path]
		if !busy {
			done := make(chan struct{})
			p.inFlight[path] = done
			p.inFlightMu.Unlock()
			return func() {
				p.inFlightMu.Lock()
				delete(p.inFlight, path)
				p.inFlightMu.Unlock()
				close(done)
			}, nil
		}
		p.inFlightMu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) doImport(ctx context.Context, path string) Outcome {
	out := Outcome{Path: path}

	ext := extensionOf(path)
	imp, ok := p.registry.Lookup(ext)
	if !ok {
		out.Err = fmt.Errorf("importer: no importer registered for extension %q (%s)", ext, path)
		return out
	}
	out.TypeID = imp.TypeID()

	sidecar, _, err := meta.Load(path)
	if err != nil {
		out.Err = fmt.Errorf("importer: loading sidecar for %s: %w", path, err)
		return out
	}
	var stateBytes, optionsBytes []byte
	var priorID *assetid.AssetUuid
	if sidecar != nil && len(sidecar.Assets) > 0 {
		stateBytes, err = marshalNode(sidecar.Assets[0].ImporterState)
		if err != nil {
			out.Err = fmt.Errorf("importer: decoding importer_state for %s: %w", path, err)
			return out
		}
		optionsBytes, err = marshalNode(sidecar.Assets[0].ImporterOptions)
		if err != nil {
			out.Err = fmt.Errorf("importer: decoding importer_options for %s: %w", path, err)
			return out
		}
		id := sidecar.Assets[0].AssetUUID
		priorID = &id
	}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Err = fmt.Errorf("importer: reading %s: %w", path, err)
		return out
	}

	out.Fingerprint = ComputeFingerprint(data, imp.Version(), optionsBytes, stateBytes)

	// Memoization: an unchanged fingerprint whose artifact the hub already
	// holds means the importer need not run at all.
	if priorID != nil && p.skip != nil && p.skip(*priorID, out.Fingerprint) {
		out.Skipped = true
		return out
	}

	result, newState, err := imp.Import(ctx, bytes.NewReader(data), optionsBytes, stateBytes)
	if err != nil {
		out.Err = fmt.Errorf("importer: %s: %w", path, err)
		return out
	}

	if err := p.persistSidecar(path, sidecar, imp, result, newState); err != nil {
		out.Err = err
		return out
	}

	out.Result = result
	return out
}

// persistSidecar writes the sidecar back with the asset identities and
// updated importer state the import produced, so identity survives daemon
// restarts and renames.
func (p *Pool) persistSidecar(path string, prior *meta.Sidecar, imp Importer, result Result, newState []byte) error {
	updated := &meta.Sidecar{}

	var stateNode yaml.Node
	if len(newState) > 0 {
		if err := yaml.Unmarshal(newState, &stateNode); err != nil {
			return fmt.Errorf("importer: reparsing updated state for %s: %w", path, err)
		}
		// yaml.Unmarshal wraps the parsed value in a DocumentNode, which
		// cannot be marshaled as a field value; keep only its content.
		if stateNode.Kind == yaml.DocumentNode && len(stateNode.Content) == 1 {
			stateNode = *stateNode.Content[0]
		}
	}

	for i, asset := range result.Assets {
		entry := meta.AssetEntry{
			AssetUUID:       asset.ID,
			ImporterVersion: imp.Version(),
		}
		if prior != nil && i < len(prior.Assets) {
			entry.ImporterOptions = prior.Assets[i].ImporterOptions
		}
		if i == 0 {
			entry.ImporterState = stateNode
		}
		updated.Assets = append(updated.Assets, entry)
	}

	if len(updated.Assets) == 0 {
		return nil
	}
	if err := meta.Save(path, updated, p.logger); err != nil {
		return fmt.Errorf("importer: writing sidecar for %s: %w", path, err)
	}
	return nil
}

func extensionOf(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return ext
}

// marshalNode re-serializes a yaml.Node back to bytes so it can be handed
// to an Importer as an opaque options/state blob. A zero-value Node (no
// sidecar entry yet) marshals to an empty document, which importers treat
// the same as absent state.
func marshalNode(node yaml.Node) ([]byte, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	return yaml.Marshal(&node)
}
