package assetid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeUuid(seed byte) AssetUuid {
	var id AssetUuid
	for i := range id {
		id[i] = seed + byte(i)
	}
	return id
}

func TestDeriveArtifactIdDeterministic(t *testing.T) {
	asset := makeUuid(1)
	deps := []AssetUuid{makeUuid(2), makeUuid(3)}

	first := DeriveArtifactId(42, asset, deps)
	second := DeriveArtifactId(42, asset, deps)
	require.Equal(t, first, second)
}

func TestDeriveArtifactIdInvariantUnderPermutation(t *testing.T) {
	asset := makeUuid(1)
	a, b, c := makeUuid(2), makeUuid(3), makeUuid(4)

	orderings := [][]AssetUuid{
		{a, b, c},
		{c, b, a},
		{b, c, a},
	}

	var ids []ArtifactId
	for _, deps := range orderings {
		ids = append(ids, DeriveArtifactId(7, asset, deps))
	}
	for _, id := range ids[1:] {
		require.Equal(t, ids[0], id)
	}
}

func TestDeriveArtifactIdInvariantUnderDuplication(t *testing.T) {
	asset := makeUuid(1)
	a, b := makeUuid(2), makeUuid(3)

	withoutDup := DeriveArtifactId(7, asset, []AssetUuid{a, b})
	withDup := DeriveArtifactId(7, asset, []AssetUuid{a, a, b, b, a})

	require.Equal(t, withoutDup, withDup)
}

func TestDeriveArtifactIdDiffersOnInputChange(t *testing.T) {
	asset := makeUuid(1)
	deps := []AssetUuid{makeUuid(2)}

	base := DeriveArtifactId(7, asset, deps)
	differentHash := DeriveArtifactId(8, asset, deps)
	differentAsset := DeriveArtifactId(7, makeUuid(9), deps)
	differentDeps := DeriveArtifactId(7, asset, []AssetUuid{makeUuid(10)})

	require.NotEqual(t, base, differentHash)
	require.NotEqual(t, base, differentAsset)
	require.NotEqual(t, base, differentDeps)
}

func TestArtifactIdKeyBytesRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		id := ArtifactId(r.Uint64())
		require.Equal(t, id, ArtifactIdFromKeyBytes(id.KeyBytes()))
	}
}
