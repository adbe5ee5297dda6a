package assetid

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var canonicalForm = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestAssetUuidRoundTripText(t *testing.T) {
	bytes := [Size]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	id := AssetUuid(bytes)

	text, err := id.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", string(text))
	require.Regexp(t, canonicalForm, string(text))

	var decoded AssetUuid
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, id, decoded)
}

func TestAssetUuidRoundTripBinary(t *testing.T) {
	bytes := [Size]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	id := AssetUuid(bytes)

	decoded, err := AssetUuidFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}

func TestAssetTypeIdTextEncoding(t *testing.T) {
	bytes := [Size]byte{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3}
	id := AssetTypeId(bytes)

	text, err := id.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "03010401-0509-0206-0503-050809070903", string(text))
}

func TestAssetUuidFromBytesRejectsWrongLength(t *testing.T) {
	_, err := AssetUuidFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
