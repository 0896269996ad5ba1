package mesh

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(name string) *UGrid {
	return &UGrid{
		UUID: uuid.NewString(),
		Name: name,
		Points: []Point{
			{X: -97.5, Y: 27.8, Z: -3},
			{X: -97.4, Y: 27.8, Z: -4},
			{X: -97.45, Y: 27.9, Z: 1.5},
		},
		Cells: []Cell{{0, 1, 2}},
	}
}

func TestUGridExtents(t *testing.T) {
	ext := triangle("bay").Extents()
	assert.Equal(t, Point{X: -97.5, Y: 27.8, Z: -4}, ext.Min)
	assert.Equal(t, Point{X: -97.4, Y: 27.9, Z: 1.5}, ext.Max)
	assert.Equal(t, Extents{}, (&UGrid{}).Extents())
}

func TestProjectGrids(t *testing.T) {
	p := NewProject()
	bay := triangle("bay")
	require.NoError(t, p.AddGrid(bay))
	require.NoError(t, p.AddGrid(triangle("shelf")))

	assert.Equal(t, []string{"bay", "shelf"}, p.GridNames())
	assert.Error(t, p.AddGrid(triangle("bay")), "duplicate name")

	got, err := p.GridByUUID(bay.UUID)
	require.NoError(t, err)
	assert.Same(t, bay, got)

	_, err = p.Grid("ocean")
	require.ErrorIs(t, err, ErrNotFound)

	broken := triangle("broken")
	broken.Cells = []Cell{{0, 1, 3}}
	assert.Error(t, p.AddGrid(broken))
}

func TestProjectAddDatasetChecksGrid(t *testing.T) {
	p := NewProject()
	bay := triangle("bay")
	require.NoError(t, p.AddGrid(bay))

	ok := &Dataset{UUID: uuid.NewString(), Name: "manning", GridUUID: bay.UUID, Times: []float64{0}, Values: [][]float64{{0.02, 0.02, 0.03}}}
	require.NoError(t, p.AddDataset(ok))
	assert.Equal(t, []*Dataset{ok}, p.DatasetsFor(bay.UUID))

	short := &Dataset{UUID: uuid.NewString(), Name: "short", GridUUID: bay.UUID, Times: []float64{0}, Values: [][]float64{{1}}}
	assert.Error(t, p.AddDataset(short))

	orphan := &Dataset{UUID: uuid.NewString(), Name: "orphan", GridUUID: uuid.NewString(), Times: []float64{0}, Values: [][]float64{{1, 2, 3}}}
	require.ErrorIs(t, p.AddDataset(orphan), ErrNotFound)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "workspace.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Grids())

	p := NewProject()
	bay := triangle("bay")
	bay.WKT = `GEOGCS["NAD83"]`
	require.NoError(t, p.AddGrid(bay))
	require.NoError(t, p.AddGrid(triangle("shelf")))
	require.NoError(t, p.AddDataset(&Dataset{
		UUID: uuid.NewString(), Name: "depth", GridUUID: bay.UUID,
		Times: []float64{0}, Values: [][]float64{{3, 4, -1.5}},
	}))
	require.NoError(t, store.Save(ctx, p))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bay", "shelf"}, loaded.GridNames())
	got, err := loaded.Grid("bay")
	require.NoError(t, err)
	assert.Equal(t, bay, got)
	require.Len(t, loaded.Datasets(), 1)
	assert.Equal(t, "depth", loaded.Datasets()[0].Name)

	// saving a smaller project replaces the previous content
	require.NoError(t, reopened.Save(ctx, NewProject()))
	loaded, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Grids())
}
