package importer

import (
	"context"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/atelier-assets/atelier/internal/assetid"
)

// passthroughTypeID is the frozen 16-byte type id for PassthroughImporter,
// chosen once and never reused.
var passthroughTypeID = assetid.AssetTypeId{
	0x16, 0x2e, 0xde, 0x20, 0x6f, 0xdd, 0x44, 0xc1,
	0x83, 0x87, 0x8f, 0x93, 0x98, 0x3c, 0x06, 0x7c,
}

// passthroughState is persisted in the ".meta" sidecar's ImporterState so
// the same AssetUuid is reused across imports of the same source file.
type passthroughState struct {
	ID *assetid.AssetUuid `yaml:"id"`
}

// PassthroughImporter is a trivial reference importer: it treats the
// entire source file as the asset's opaque payload, with no parsing. It
// exists so the pipeline is exercisable end-to-end without a real
// domain-specific format; a true format-aware importer is expected to
// replace it per source extension in a concrete deployment.
type PassthroughImporter struct{}

// TypeID implements Importer.
func (PassthroughImporter) TypeID() assetid.AssetTypeId { return passthroughTypeID }

// Version implements Importer.
func (PassthroughImporter) Version() uint32 { return 1 }

// Import implements Importer by copying source verbatim into a single
// asset's AssetData, generating (and round-tripping through state) a
// stable AssetUuid the first time it sees a given source path.
func (PassthroughImporter) Import(_ context.Context, source io.Reader, _ []byte, state []byte) (Result, []byte, error) {
	var st passthroughState
	if len(state) > 0 {
		if err := yaml.Unmarshal(state, &st); err != nil {
			return Result{}, nil, err
		}
	}
	if st.ID == nil {
		id := assetid.NewAssetUuid()
		st.ID = &id
	}

	data, err := io.ReadAll(source)
	if err != nil {
		return Result{}, nil, err
	}

	updatedState, err := yaml.Marshal(st)
	if err != nil {
		return Result{}, nil, err
	}

	return Result{
		Assets: []Asset{
			{
				ID:        *st.ID,
				AssetData: data,
			},
		},
	}, updatedState, nil
}

// EncodeState serializes the importer's updated state for persistence
// into the ".meta" sidecar.
func (PassthroughImporter) EncodeState(id assetid.AssetUuid) ([]byte, error) {
	return yaml.Marshal(passthroughState{ID: &id})
}
