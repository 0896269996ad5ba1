// Package mesh holds the in-memory workspace that in-process tools share:
// unstructured grids, per-node datasets, and the project that owns them.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrNotFound is returned when a grid or dataset lookup fails.
var ErrNotFound = errors.New("mesh: not found")

// Point is a node location. Z is elevation, positive up.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Cell is a triangle given as three zero-based point indices.
type Cell [3]int

// Extents is the bounding box of a grid.
type Extents struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// UGrid is an unstructured triangular grid.
type UGrid struct {
	UUID   string  `json:"uuid"`
	Name   string  `json:"name"`
	Points []Point `json:"points"`
	Cells  []Cell  `json:"cells"`
	// WKT is the projection of the point coordinates.
	WKT string `json:"wkt,omitempty"`
}

// Extents computes the bounding box. A grid without points has zero extents.
func (g *UGrid) Extents() Extents {
	if len(g.Points) == 0 {
		return Extents{}
	}
	ext := Extents{
		Min: Point{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, p := range g.Points {
		ext.Min.X, ext.Max.X = math.Min(ext.Min.X, p.X), math.Max(ext.Max.X, p.X)
		ext.Min.Y, ext.Max.Y = math.Min(ext.Min.Y, p.Y), math.Max(ext.Max.Y, p.Y)
		ext.Min.Z, ext.Max.Z = math.Min(ext.Min.Z, p.Z), math.Max(ext.Max.Z, p.Z)
	}
	return ext
}

// Validate checks that every cell references existing points.
func (g *UGrid) Validate() error {
	for i, cell := range g.Cells {
		for _, idx := range cell {
			if idx < 0 || idx >= len(g.Points) {
				return fmt.Errorf("mesh: grid %q cell %d references point %d of %d", g.Name, i+1, idx+1, len(g.Points))
			}
		}
	}
	return nil
}

// Dataset holds one scalar value per grid node for each time step.
type Dataset struct {
	UUID      string      `json:"uuid"`
	Name      string      `json:"name"`
	GridUUID  string      `json:"grid_uuid"`
	Units     string      `json:"units,omitempty"`
	TimeUnits string      `json:"time_units,omitempty"`
	Times     []float64   `json:"times"`
	Values    [][]float64 `json:"values"`
	// NullValue marks dry or inactive nodes, when the source has one.
	NullValue *float64    `json:"null_value,omitempty"`
}

// Project is the workspace: ordered grids and the datasets defined on them.
//
// A Project is not safe for concurrent use; one invocation at a time owns it.
type Project struct {
	grids    []*UGrid
	datasets []*Dataset
}

// NewProject creates an empty project.
func NewProject() *Project {
	return &Project{}
}

// AddGrid appends g. Grid names and UUIDs must be unique within the project.
func (p *Project) AddGrid(g *UGrid) error {
	if g == nil || strings.TrimSpace(g.Name) == "" {
		return errors.New("mesh: grid name is required")
	}
	if strings.TrimSpace(g.UUID) == "" {
		return errors.New("mesh: grid uuid is required")
	}
	if _, err := p.Grid(g.Name); err == nil {
		return fmt.Errorf("mesh: a grid named %q already exists", g.Name)
	}
	if _, err := p.GridByUUID(g.UUID); err == nil {
		return fmt.Errorf("mesh: a grid with uuid %s already exists", g.UUID)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	p.grids = append(p.grids, g)
	return nil
}

// Grid looks up a grid by name.
func (p *Project) Grid(name string) (*UGrid, error) {
	for _, g := range p.grids {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: grid %q", ErrNotFound, name)
}

// GridByUUID looks up a grid by UUID.
func (p *Project) GridByUUID(uuid string) (*UGrid, error) {
	for _, g := range p.grids {
		if g.UUID == uuid {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: grid %s", ErrNotFound, uuid)
}

// Grids returns the grids in insertion order.
func (p *Project) Grids() []*UGrid {
	return slices.Clone(p.grids)
}

// GridNames returns the grid names in insertion order.
func (p *Project) GridNames() []string {
	names := make([]string, 0, len(p.grids))
	for _, g := range p.grids {
		names = append(names, g.Name)
	}
	return names
}

// AddDataset appends d after checking it against its grid.
func (p *Project) AddDataset(d *Dataset) error {
	if d == nil || strings.TrimSpace(d.Name) == "" {
		return errors.New("mesh: dataset name is required")
	}
	grid, err := p.GridByUUID(d.GridUUID)
	if err != nil {
		return fmt.Errorf("mesh: dataset %q: %w", d.Name, err)
	}
	if len(d.Times) != len(d.Values) {
		return fmt.Errorf("mesh: dataset %q has %d times but %d value steps", d.Name, len(d.Times), len(d.Values))
	}
	for step, values := range d.Values {
		if len(values) != len(grid.Points) {
			return fmt.Errorf("mesh: dataset %q step %d has %d values, grid %q has %d nodes",
				d.Name, step, len(values), grid.Name, len(grid.Points))
		}
	}
	p.datasets = append(p.datasets, d)
	return nil
}

// Datasets returns the datasets in insertion order.
func (p *Project) Datasets() []*Dataset {
	return slices.Clone(p.datasets)
}

// DatasetsFor returns the datasets defined on the grid with gridUUID.
func (p *Project) DatasetsFor(gridUUID string) []*Dataset {
	var out []*Dataset
	for _, d := range p.datasets {
		if d.GridUUID == gridUUID {
			out = append(out, d)
		}
	}
	return out
}
