// Package toolbox holds the built-in tools: ADCIRC readers and writers that
// work on the mesh workspace, and GDAL coordinate transforms.
package toolbox

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aquaveo/xmstool-runner/catalog"
	"github.com/Aquaveo/xmstool-runner/mesh"
	"github.com/Aquaveo/xmstool-runner/tool"
)

const (
	CategoryADCIRC      = "ADCIRC"
	CategoryCoordinates = "Coordinates"
)

// Options configures the built-in tools.
type Options struct {
	// Runner launches GDAL programs for in-process tools. Defaults to tool.ExecRunner.
	Runner tool.ProcessRunner
	// GDALDir is the default directory of the GDAL command line tools.
	GDALDir string
	// NewUUID generates grid and dataset ids. Defaults to uuid.NewString.
	NewUUID func() string
}

func (o Options) withDefaults() Options {
	if o.Runner == nil {
		o.Runner = tool.ExecRunner{}
	}
	if o.NewUUID == nil {
		o.NewUUID = uuid.NewString
	}
	return o
}

// Entries returns the registration table of the built-in tools.
func Entries(opts Options) []catalog.Entry {
	opts = opts.withDefaults()
	return []catalog.Entry{
		catalog.Define(ugridFromFort14(opts)),
		catalog.Define(datasetsFromFort13(opts)),
		catalog.Define(datasetFromFort63(opts)),
		catalog.Define(exportFort14()),
		catalog.Define(transformUGridPoints(opts)),
		catalog.Define(transformPoint(opts)),
		catalog.Define(srsWKT(opts)),
	}
}

var errNoWorkspace = errors.New("this tool needs a mesh workspace")

func project(call tool.Call) (*mesh.Project, error) {
	p, ok := call.Workspace.(*mesh.Project)
	if !ok || p == nil {
		return nil, errNoWorkspace
	}
	return p, nil
}

func gdalDirParam(opts Options) tool.ParamSpec {
	return tool.ParamSpec{
		Name:        "gdal_tools_path",
		Label:       "GDAL tools path",
		Description: "Path to GDAL command line tools",
		Kind:        tool.ParamFileIn,
		Default:     opts.GDALDir,
		Constraints: tool.Constraints{Directory: true},
	}
}

func epsgParam(name, label string, required bool) tool.ParamSpec {
	lo, hi := 1.0, 999999.0
	return tool.ParamSpec{
		Name:        name,
		Label:       label,
		Kind:        tool.ParamInteger,
		Required:    required,
		Constraints: tool.Constraints{Min: &lo, Max: &hi},
	}
}

func gridArtifact(g *mesh.UGrid) tool.Artifact {
	return tool.Artifact{Kind: tool.ArtifactGrid, Name: g.Name, Ref: g.UUID, Value: fmt.Sprintf("%d points, %d cells", len(g.Points), len(g.Cells))}
}
