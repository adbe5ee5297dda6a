package assetid

import "fmt"

// RefKind distinguishes the two forms an AssetRef may take.
type RefKind uint8

const (
	// RefUuid indicates the AssetRef carries a resolved AssetUuid.
	RefUuid RefKind = iota
	// RefPath indicates the AssetRef carries a source path, which must be
	// resolved to a UUID via the Asset Hub's path index.
	RefPath
)

// AssetRef is a tagged union over a resolved AssetUuid or an unresolved
// source path.
type AssetRef struct {
	kind RefKind
	uuid AssetUuid
	path string
}

// NewUuidRef constructs an AssetRef that already carries a resolved UUID.
func NewUuidRef(id AssetUuid) AssetRef {
	return AssetRef{kind: RefUuid, uuid: id}
}

// NewPathRef constructs an AssetRef over an unresolved source path.
func NewPathRef(path string) AssetRef {
	return AssetRef{kind: RefPath, path: path}
}

// Kind reports which variant this AssetRef holds.
func (r AssetRef) Kind() RefKind {
	return r.kind
}

// Uuid returns the carried AssetUuid and true if this ref is a RefUuid.
func (r AssetRef) Uuid() (AssetUuid, bool) {
	return r.uuid, r.kind == RefUuid
}

// Path returns the carried path and true if this ref is a RefPath.
func (r AssetRef) Path() (string, bool) {
	return r.path, r.kind == RefPath
}

// String renders the ref for diagnostics.
func (r AssetRef) String() string {
	switch r.kind {
	case RefUuid:
		return r.uuid.String()
	case RefPath:
		return fmt.Sprintf("path:%s", r.path)
	default:
		return "invalid-ref"
	}
}
