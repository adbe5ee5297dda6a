package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assethub"
	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/housekeeping"
	"github.com/atelier-assets/atelier/internal/importer"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/meta"
	"github.com/atelier-assets/atelier/internal/publish"
	"github.com/atelier-assets/atelier/internal/storekv"
	"github.com/atelier-assets/atelier/internal/tracker"
	"github.com/atelier-assets/atelier/internal/watch"
)

// Options configures one run of the daemon, combining the loaded
// config.Config with anything overridden by CLI flags.
type Options struct {
	DatabasePath         string
	WatchDirectories     []string
	Address              string
	ImporterConcurrency  int64
	DebounceWindow       time.Duration
	CompressionThreshold int
}

// Daemon wires together the file tracker, importer pool, artifact cache,
// and asset hub into the end-to-end pipeline: watch -> tracker ->
// importer -> cache + hub.
type Daemon struct {
	store     *storekv.Store
	tracker   *tracker.Tracker
	pool      *importer.Pool
	cache     *artifactcache.Cache
	hub       *assethub.Hub
	registry  *importer.Registry
	watchDirs []string
	address   string
	logger    *logging.Logger
}

// New opens the database and constructs every component, registering the
// reference PassthroughImporter for the "txt" extension only; files with
// any other extension have no importer unless callers call
// Registry().Register before calling Run.
func New(opts Options, logger *logging.Logger) (*Daemon, error) {
	store, err := storekv.Open(opts.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	registry := importer.NewRegistry()
	registry.Register("txt", &importer.PassthroughImporter{})

	concurrency := opts.ImporterConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	hub := assethub.New(store)
	cache := artifactcache.New(store, opts.CompressionThreshold)

	// The memoization check: re-derive the artifact id the hub would hold
	// if this exact fingerprint had already been imported with the current
	// build deps, and skip when it matches.
	skip := func(asset assetid.AssetUuid, fp importer.Fingerprint) bool {
		current, ok, err := hub.Get(asset)
		if err != nil || !ok {
			return false
		}
		deps := make([]assetid.AssetUuid, 0, len(current.BuildDeps))
		for _, ref := range current.BuildDeps {
			uuid, isUuid := ref.Uuid()
			if !isUuid {
				return false
			}
			deps = append(deps, uuid)
		}
		return current.ArtifactID == assetid.DeriveArtifactId(fp.ImportHash, asset, deps)
	}

	return &Daemon{
		store:     store,
		tracker:   tracker.New(store, opts.WatchDirectories, opts.DebounceWindow, logger),
		pool:      importer.NewPool(registry, concurrency, skip, logger),
		cache:     cache,
		hub:       hub,
		registry:  registry,
		watchDirs: append([]string(nil), opts.WatchDirectories...),
		address:   opts.Address,
		logger:    logger,
	}, nil
}

// Registry exposes the importer registry so callers can register additional
// Importer implementations before Run.
func (d *Daemon) Registry() *importer.Registry {
	return d.registry
}

// Close closes the underlying database. Callers should stop the tracker
// (via Run's context cancellation) before calling Close.
func (d *Daemon) Close() error {
	return d.store.Close()
}

// Run starts the File Tracker and the import pipeline and blocks until ctx
// is cancelled. Every dirty file reported by the tracker is imported,
// cached, and committed to the Asset Hub; a housekeeping loop runs
// alongside on its own schedule.
func (d *Daemon) Run(ctx context.Context) error {
	events := d.tracker.RegisterListener()
	go d.tracker.Run(ctx)

	// The caches-directory sweep must never prune the current published
	// generation, so it re-reads the recorded packfile name on every pass.
	currentPackfileName := func() string {
		name, err := publish.CurrentPackfileName(d.store)
		if err != nil {
			d.logger.Warnf("unable to read current packfile name: %v", err)
			return ""
		}
		return name
	}
	go housekeeping.Run(ctx, d.logger.Sublogger("housekeeping"), d.watchDirs, currentPackfileName)
	if err := d.serveStatus(ctx, d.address, d.logger.Sublogger("status")); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			d.tracker.Stop()
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			d.drainDirty(ctx)
		}
	}
}

// drainDirty re-reads the dirty_files bucket and imports every entry found
// there. Re-reading rather than threading a batch's paths through the event
// keeps this correct even if several tracker batches coalesce before this
// loop gets a turn to run.
func (d *Daemon) drainDirty(ctx context.Context) {
	var dirty []tracker.PathState
	err := d.store.View(func(tx *bbolt.Tx) error {
		var readErr error
		dirty, readErr = tracker.ReadDirtyFiles(tx)
		return readErr
	})
	if err != nil {
		d.logger.Errorf("unable to read dirty files: %v", err)
		return
	}

	for _, ps := range dirty {
		d.importOne(ctx, ps)
	}
}

// importOne processes a single dirty path: a deleted source drops out of
// the hub's path index, a live one is imported, cached, and committed.
// The dirty marker is cleared only after successful processing, so a
// failed import is retried on the next tick.
func (d *Daemon) importOne(ctx context.Context, ps tracker.PathState) {
	if ps.State == tracker.StateDeleted {
		if err := d.hub.RemovePath(ps.Path); err != nil {
			d.logger.Errorf("unable to unindex deleted source %s: %v", ps.Path, err)
			return
		}
		d.clearDirty(ps.Path)
		return
	}
	if ps.FileType != watch.FileTypeFile {
		d.clearDirty(ps.Path)
		return
	}
	if strings.HasSuffix(ps.Path, meta.Suffix) {
		d.clearDirty(ps.Path)
		return
	}

	outcome := d.pool.ImportPath(ctx, ps.Path)
	if outcome.Err != nil {
		d.logger.Warnf("import failed for %s: %v", ps.Path, outcome.Err)
		return
	}
	if outcome.Skipped {
		d.clearDirty(ps.Path)
		return
	}

	for _, asset := range outcome.Result.Assets {
		artifactID := assetid.DeriveArtifactId(outcome.Fingerprint.ImportHash, asset.ID, asset.BuildDeps)

		stats, err := d.cache.Put(artifactID, asset.AssetData)
		if err != nil {
			d.logger.Errorf("unable to cache artifact for %s: %v", ps.Path, err)
			return
		}

		buildRefs := make([]assetid.AssetRef, len(asset.BuildDeps))
		for i, dep := range asset.BuildDeps {
			buildRefs[i] = assetid.NewUuidRef(dep)
		}
		loadRefs := make([]assetid.AssetRef, len(asset.LoadDeps))
		for i, dep := range asset.LoadDeps {
			loadRefs[i] = assetid.NewUuidRef(dep)
		}

		metadata := assethub.ArtifactMetadata{
			ArtifactID:       artifactID,
			AssetID:          asset.ID,
			BuildDeps:        buildRefs,
			LoadDeps:         loadRefs,
			Compression:      stats.Compression,
			UncompressedSize: stats.UncompressedSize,
			CompressedSize:   stats.CompressedSize,
			TypeID:           outcome.TypeID,
		}
		if err := d.hub.Commit(asset.ID, metadata, []string{ps.Path}); err != nil {
			d.logger.Errorf("unable to commit asset %s: %v", asset.ID, err)
			return
		}
	}

	d.clearDirty(ps.Path)
}

func (d *Daemon) clearDirty(path string) {
	if err := d.store.Update(func(tx *bbolt.Tx) error {
		return tracker.DeleteDirtyFileState(tx, path)
	}); err != nil {
		d.logger.Errorf("unable to clear dirty marker for %s: %v", path, err)
	}
}
