package toolbox

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/Aquaveo/xmstool-runner/adcirc"
	"github.com/Aquaveo/xmstool-runner/tool"
)

func ugridFromFort14(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "ugrid-from-fort14",
		DisplayName: "UGrid from fort.14 File",
		Category:    CategoryADCIRC,
		Version:     "1.0",
		Description: "Create a UGrid from an ADCIRC fort.14 geometry file.",
		Params: []tool.ParamSpec{
			{Name: "fort_14_file", Label: "Input fort.14 file", Kind: tool.ParamFileIn, Required: true,
				Constraints: tool.Constraints{Extensions: []string{".14", ".grd"}}},
			{Name: "ugrid_name", Label: "Name of the output UGrid", Kind: tool.ParamText,
				Description: "Defaults to the mesh name in the file."},
		},
		Strategy: tool.InProcess{Run: func(ctx context.Context, call tool.Call) (tool.Result, error) {
			p, err := project(call)
			if err != nil {
				return tool.Result{}, err
			}
			grid, err := adcirc.ReadFort14(call.Params.String("fort_14_file"), call.Logger)
			if err != nil {
				return tool.Result{}, err
			}
			grid.UUID = opts.NewUUID()
			if call.Params.Has("ugrid_name") {
				grid.Name = call.Params.String("ugrid_name")
			}
			if grid.Name == "" {
				grid.Name = "fort.14"
			}
			if err := p.AddGrid(grid); err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Artifacts: []tool.Artifact{gridArtifact(grid)}}, nil
		}},
	}
}

func datasetsFromFort13(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "datasets-from-fort13",
		DisplayName: "Datasets from fort.13 File",
		Category:    CategoryADCIRC,
		Version:     "1.0",
		Description: "Create datasets on a UGrid from an ADCIRC fort.13 nodal attribute file.",
		Params: []tool.ParamSpec{
			{Name: "input_ugrid", Label: "Input UGrid", Kind: tool.ParamText, Required: true},
			{Name: "fort_13_file", Label: "Input fort.13 file", Kind: tool.ParamFileIn, Required: true,
				Constraints: tool.Constraints{Extensions: []string{".13"}}},
		},
		Strategy: tool.InProcess{Run: func(ctx context.Context, call tool.Call) (tool.Result, error) {
			p, err := project(call)
			if err != nil {
				return tool.Result{}, err
			}
			grid, err := p.Grid(call.Params.String("input_ugrid"))
			if err != nil {
				return tool.Result{}, err
			}
			attrs, err := adcirc.ReadFort13(call.Params.String("fort_13_file"), grid, call.Logger)
			if err != nil {
				return tool.Result{}, err
			}

			var result tool.Result
			for _, d := range attrs.Datasets {
				d.UUID = opts.NewUUID()
				if err := p.AddDataset(d); err != nil {
					return tool.Result{}, err
				}
				result.Artifacts = append(result.Artifacts, tool.Artifact{Kind: tool.ArtifactDataset, Name: d.Name, Ref: d.UUID})
			}
			for _, name := range slices.Sorted(maps.Keys(attrs.Constants)) {
				result.Artifacts = append(result.Artifacts, tool.Artifact{Kind: tool.ArtifactValue, Name: name, Value: attrs.Constants[name]})
			}
			return result, nil
		}},
	}
}

func datasetFromFort63(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "dataset-from-fort63",
		DisplayName: "Dataset from fort.63 File",
		Category:    CategoryADCIRC,
		Version:     "1.0",
		Description: "Create a water surface elevation dataset on a UGrid from an ADCIRC ASCII fort.63 file.",
		Params: []tool.ParamSpec{
			{Name: "input_ugrid", Label: "Input UGrid", Kind: tool.ParamText, Required: true},
			{Name: "fort_63_file", Label: "Input fort.63 file", Kind: tool.ParamFileIn, Required: true,
				Constraints: tool.Constraints{Extensions: []string{".63"}}},
			{Name: "output_dataset", Label: "Output dataset", Kind: tool.ParamText, Default: adcirc.DefaultElevationName},
		},
		Strategy: tool.InProcess{Run: func(ctx context.Context, call tool.Call) (tool.Result, error) {
			p, err := project(call)
			if err != nil {
				return tool.Result{}, err
			}
			grid, err := p.Grid(call.Params.String("input_ugrid"))
			if err != nil {
				return tool.Result{}, err
			}
			dataset, err := adcirc.ReadFort63(call.Params.String("fort_63_file"), call.Params.String("output_dataset"), grid, call.Logger)
			if err != nil {
				return tool.Result{}, err
			}
			dataset.UUID = opts.NewUUID()
			if err := p.AddDataset(dataset); err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Artifacts: []tool.Artifact{{
				Kind:  tool.ArtifactDataset,
				Name:  dataset.Name,
				Ref:   dataset.UUID,
				Value: fmt.Sprintf("%d time steps", len(dataset.Times)),
			}}}, nil
		}},
	}
}

func exportFort14() tool.Definition {
	return tool.Definition{
		ID:          "export-fort14",
		DisplayName: "Export fort.14 File",
		Category:    CategoryADCIRC,
		Version:     "1.0",
		Description: "Write a UGrid from the workspace as an ADCIRC fort.14 file.",
		Params: []tool.ParamSpec{
			{Name: "input_ugrid", Label: "Input UGrid", Kind: tool.ParamText, Required: true},
			{Name: "fort_14_file", Label: "Output fort.14 file", Kind: tool.ParamFileOut, Required: true,
				Constraints: tool.Constraints{Extensions: []string{".14", ".grd"}}},
		},
		Strategy: tool.InProcess{Run: func(ctx context.Context, call tool.Call) (tool.Result, error) {
			p, err := project(call)
			if err != nil {
				return tool.Result{}, err
			}
			grid, err := p.Grid(call.Params.String("input_ugrid"))
			if err != nil {
				return tool.Result{}, err
			}
			path := call.Params.String("fort_14_file")
			if err := adcirc.WriteFort14File(path, grid); err != nil {
				return tool.Result{}, err
			}
			call.Logger.Info(fmt.Sprintf("Wrote %d nodes and %d elements to %q.", len(grid.Points), len(grid.Cells), path))
			return tool.Result{Artifacts: []tool.Artifact{{Kind: tool.ArtifactFile, Name: "fort_14_file", Path: path}}}, nil
		}},
	}
}
