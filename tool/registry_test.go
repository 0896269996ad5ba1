package tool

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(id, category, description string) Descriptor {
	return MustDescriptor(Definition{
		ID:          id,
		Category:    category,
		Description: description,
		Strategy:    InProcess{Run: noopRun},
	})
}

func ids(seq func(func(Descriptor) bool)) []string {
	var out []string
	for d := range seq {
		out = append(out, d.ID())
	}
	return out
}

func TestRegistryRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testDescriptor("ugrid-from-fort14", "ADCIRC", "Read a fort.14 mesh")))
	require.NoError(t, reg.Register(testDescriptor("transform-point", "Coordinates", "Reproject a point")))
	require.NoError(t, reg.Register(testDescriptor("datasets-from-fort13", "ADCIRC", "Read nodal attributes")))

	want := []string{"ugrid-from-fort14", "transform-point", "datasets-from-fort13"}
	assert.Equal(t, want, ids(reg.All()))
	// restartable
	assert.Equal(t, want, ids(reg.All()))
	assert.Equal(t, []string{"ADCIRC", "Coordinates"}, reg.Categories())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryDuplicateLeavesRegistryUnchanged(t *testing.T) {
	reg := NewRegistry()
	original := testDescriptor("srs-wkt", "Coordinates", "first")
	require.NoError(t, reg.Register(original))

	err := reg.Register(testDescriptor("srs-wkt", "Other", "second"))
	require.ErrorIs(t, err, ErrDuplicateID)

	assert.Equal(t, 1, reg.Len())
	found, err := reg.Find("srs-wkt")
	require.NoError(t, err)
	assert.Equal(t, "first", found.Description())
	assert.Equal(t, []string{"Coordinates"}, reg.Categories())
}

func TestRegistryFind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testDescriptor("srs-wkt", "Coordinates", "")))

	_, err := reg.Find("nope")
	require.ErrorIs(t, err, ErrNotFound)

	err = reg.Register(Descriptor{})
	require.ErrorIs(t, err, ErrRegistration)
}

func TestRegistryAllStopsEarly(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Register(testDescriptor(id, "", "")))
	}
	var seen []string
	for d := range reg.All() {
		seen = append(seen, d.ID())
		if d.ID() == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRegistrySearch(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testDescriptor("ugrid-from-fort14", "ADCIRC", "Read a fort.14 mesh into a UGrid")))
	require.NoError(t, reg.Register(testDescriptor("export-fort14", "ADCIRC", "Write a UGrid as fort.14")))
	require.NoError(t, reg.Register(testDescriptor("transform-point", "Coordinates", "Reproject a point with GDAL")))

	assert.Equal(t, []string{"ugrid-from-fort14", "export-fort14"}, ids(reg.Search("FORT14")))
	assert.Equal(t, []string{"ugrid-from-fort14"}, ids(reg.Search("adcirc read")))
	assert.Equal(t, []string{"transform-point"}, ids(reg.Search("gdal")))
	assert.Empty(t, ids(reg.Search("adcirc", "gdal")))
	assert.True(t, slices.Equal(ids(reg.All()), ids(reg.Search())))
}
