// Package assetid defines the identity types at the center of the data
// model: AssetUuid, AssetTypeId, ArtifactId, and AssetRef.
package assetid

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Size is the byte length of both AssetUuid and AssetTypeId.
const Size = 16

// AssetUuid is a 16-byte stable identity for a logical asset, assigned once
// by an importer and persisted in a `.meta` sidecar file.
type AssetUuid [Size]byte

// AssetTypeId is a 16-byte identity for a concrete asset type (schema). It
// shares AssetUuid's representation rules.
type AssetTypeId [Size]byte

// NewAssetUuid generates a fresh random (v4) AssetUuid, used when an importer
// encounters a source with no `.meta` sidecar.
func NewAssetUuid() AssetUuid {
	generated := uuid.New()
	var id AssetUuid
	copy(id[:], generated[:])
	return id
}

// String returns the canonical 8-4-4-4-12 hex text form.
func (id AssetUuid) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler, producing the canonical
// 8-4-4-4-12 hex form used in JSON/YAML contexts.
func (id AssetUuid) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AssetUuid) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetUuid(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalYAML renders the canonical hex form in YAML documents (the
// `.meta` sidecar).
func (id AssetUuid) MarshalYAML() (interface{}, error) {
	return id.String(), nil
}

// UnmarshalYAML parses the canonical hex form from YAML documents.
func (id *AssetUuid) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	parsed, err := ParseAssetUuid(text)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseAssetUuid parses the canonical 8-4-4-4-12 hex text form.
func ParseAssetUuid(text string) (AssetUuid, error) {
	parsed, err := uuid.Parse(text)
	if err != nil {
		return AssetUuid{}, fmt.Errorf("invalid asset uuid %q: %w", text, err)
	}
	return AssetUuid(parsed), nil
}

// AssetUuidFromBytes validates that b is exactly Size bytes and returns it
// as an AssetUuid. Binary contexts carry the 16 raw bytes in order, with no
// length prefix.
func AssetUuidFromBytes(b []byte) (AssetUuid, error) {
	if len(b) != Size {
		return AssetUuid{}, fmt.Errorf("invalid asset uuid length: %d", len(b))
	}
	var id AssetUuid
	copy(id[:], b)
	return id, nil
}

// Bytes returns the raw 16 bytes, big-endian as written.
func (id AssetUuid) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// Compare provides a total order over AssetUuid values, used to stable-sort
// build-dependency lists before ArtifactId derivation.
func (id AssetUuid) Compare(other AssetUuid) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String returns the canonical 8-4-4-4-12 hex text form.
func (id AssetTypeId) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id AssetTypeId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AssetTypeId) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid asset type id %q: %w", text, err)
	}
	*id = AssetTypeId(parsed)
	return nil
}

// Bytes returns the raw 16 bytes, big-endian as written.
func (id AssetTypeId) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// AssetTypeIdFromBytes validates that b is exactly Size bytes.
func AssetTypeIdFromBytes(b []byte) (AssetTypeId, error) {
	if len(b) != Size {
		return AssetTypeId{}, fmt.Errorf("invalid asset type id length: %d", len(b))
	}
	var id AssetTypeId
	copy(id[:], b)
	return id, nil
}
