// Package publish assembles a packfile from the asset hub and artifact
// cache: a point-in-time snapshot of every committed asset's current
// artifact, written atomically so runtime clients never observe a partial
// bundle.
package publish

import (
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/atelier-assets/atelier/internal/artifactcache"
	"github.com/atelier-assets/atelier/internal/assethub"
	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/logging"
	"github.com/atelier-assets/atelier/internal/packfile"
	"github.com/atelier-assets/atelier/internal/storekv"
)

// Snapshot collects one packfile.Entry per committed asset, pairing the
// hub's current metadata with the cached artifact bytes. Assets whose
// artifact is missing from the cache are skipped with a warning rather
// than aborting the publish, since a half-garbage-collected cache should
// not block publishing the assets that remain intact.
func Snapshot(store *storekv.Store, logger *logging.Logger) ([]packfile.Entry, error) {
	hub := assethub.New(store)
	cache := artifactcache.New(store, 0)

	pathsByAsset := make(map[assetid.AssetUuid][]string)
	err := hub.ForEachPath(func(path string, ids []assetid.AssetUuid) error {
		for _, id := range ids {
			pathsByAsset[id] = append(pathsByAsset[id], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish: reading path index: %w", err)
	}

	var entries []packfile.Entry
	err = hub.ForEach(func(metadata assethub.ArtifactMetadata) error {
		data, found, err := cache.Get(metadata.ArtifactID)
		if err != nil {
			return err
		}
		if !found {
			logger.Warnf("skipping asset %s: artifact %v not in cache", metadata.AssetID, metadata.ArtifactID)
			return nil
		}

		paths := pathsByAsset[metadata.AssetID]
		if len(paths) == 0 {
			paths = []string{""}
		}
		for _, path := range paths {
			entries = append(entries, packfile.Entry{
				Path:             path,
				AssetID:          metadata.AssetID,
				TypeID:           metadata.TypeID,
				ArtifactID:       metadata.ArtifactID,
				BuildDeps:        metadata.BuildDeps,
				LoadDeps:         metadata.LoadDeps,
				Compression:      artifactcache.CompressionNone,
				UncompressedSize: metadata.UncompressedSize,
				CompressedSize:   metadata.UncompressedSize,
				Data:             data,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish: reading asset hub: %w", err)
	}

	return entries, nil
}

// Publish writes a snapshot of store's current assets to outputPath as a
// packfile and records its file name under daemon_state, so the daemon's
// housekeeping sweep of the caches directory never prunes the current
// generation.
func Publish(store *storekv.Store, outputPath string, logger *logging.Logger) (int, error) {
	entries, err := Snapshot(store, logger)
	if err != nil {
		return 0, err
	}
	if err := packfile.Write(outputPath, entries, logger); err != nil {
		return 0, fmt.Errorf("publish: writing packfile: %w", err)
	}

	name := filepath.Base(outputPath)
	err = store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(storekv.BucketDaemonState).Put(storekv.KeyCurrentPackfile, []byte(name))
	})
	if err != nil {
		return 0, fmt.Errorf("publish: recording current packfile name: %w", err)
	}

	return len(entries), nil
}

// CurrentPackfileName returns the file name recorded by the most recent
// Publish, or "" if nothing has been published yet.
func CurrentPackfileName(store *storekv.Store) (string, error) {
	var name string
	err := store.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(storekv.BucketDaemonState).Get(storekv.KeyCurrentPackfile); v != nil {
			name = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("publish: reading current packfile name: %w", err)
	}
	return name, nil
}
