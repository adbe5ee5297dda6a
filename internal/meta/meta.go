// Package meta implements the ".meta" sidecar: a YAML-encoded file
// co-located with each source file that records the stable AssetUuid(s) and
// importer state needed to make imports idempotent across daemon restarts.
package meta

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atelier-assets/atelier/internal/assetid"
	"github.com/atelier-assets/atelier/internal/filesystem"
	"github.com/atelier-assets/atelier/internal/logging"
)

// Sidecar is the on-disk shape of a ".meta" file: a single source file may
// produce multiple assets, so Assets is a list rather than a single entry.
type Sidecar struct {
	Assets []AssetEntry `yaml:"assets"`
}

// AssetEntry records one asset's importer bookkeeping. ImporterOptions and
// ImporterState are kept as opaque YAML nodes: their shape is defined by
// the importer implementation, not by this package.
type AssetEntry struct {
	AssetUUID       assetid.AssetUuid `yaml:"asset_uuid"`
	ImporterVersion uint32            `yaml:"importer_version"`
	ImporterOptions yaml.Node         `yaml:"importer_options"`
	ImporterState   yaml.Node         `yaml:"importer_state"`
}

// Suffix is the sidecar filename suffix appended to a source path.
const Suffix = ".meta"

// Path returns the sidecar path for a source file, "<source>.meta".
func Path(sourcePath string) string {
	return sourcePath + Suffix
}

// Load reads and parses the sidecar for sourcePath. It returns
// (nil, false, nil) if no sidecar exists yet; the importer then generates a
// fresh UUIDv4 and writes one.
func Load(sourcePath string) (*Sidecar, bool, error) {
	data, err := os.ReadFile(Path(sourcePath))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var sidecar Sidecar
	if err := yaml.Unmarshal(data, &sidecar); err != nil {
		return nil, false, err
	}
	return &sidecar, true, nil
}

// Save atomically (over)writes the sidecar for sourcePath via the usual
// temp-file-then-rename discipline, so a crash mid-write never leaves a
// truncated sidecar.
func Save(sourcePath string, sidecar *Sidecar, logger *logging.Logger) error {
	data, err := yaml.Marshal(sidecar)
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(Path(sourcePath), data, 0644, logger)
}

// EnsureSingleAsset loads the sidecar for sourcePath, if present, and
// returns the asset uuid it records for a single-asset importer,
// generating and persisting a fresh one if the sidecar is absent or
// empty. Multi-asset importers should use Load/Save directly instead.
func EnsureSingleAsset(sourcePath string, importerVersion uint32, logger *logging.Logger) (assetid.AssetUuid, error) {
	sidecar, ok, err := Load(sourcePath)
	if err != nil {
		return assetid.AssetUuid{}, err
	}
	if ok && len(sidecar.Assets) > 0 {
		return sidecar.Assets[0].AssetUUID, nil
	}
	if sidecar == nil {
		sidecar = &Sidecar{}
	}
	entry := AssetEntry{
		AssetUUID:       assetid.NewAssetUuid(),
		ImporterVersion: importerVersion,
	}
	sidecar.Assets = []AssetEntry{entry}
	if err := Save(sourcePath, sidecar, logger); err != nil {
		return assetid.AssetUuid{}, err
	}
	return entry.AssetUUID, nil
}
