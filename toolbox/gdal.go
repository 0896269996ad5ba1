package toolbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Aquaveo/xmstool-runner/mesh"
	"github.com/Aquaveo/xmstool-runner/tool"
)

func transformUGridPoints(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "transform-ugrid-points",
		DisplayName: "Transform UGrid Points",
		Category:    CategoryCoordinates,
		Version:     "1.0",
		Description: "Reproject the points of a UGrid between two EPSG codes with gdaltransform.",
		Params: []tool.ParamSpec{
			{Name: "input_grid", Label: "Input UGrid", Kind: tool.ParamText, Required: true},
			gdalDirParam(opts),
			epsgParam("epsg_code_from", "EPSG code from", true),
			epsgParam("epsg_code_to", "EPSG code to", true),
			{Name: "output_grid", Label: "Output UGrid", Kind: tool.ParamText, Required: true},
		},
		Check: func(p tool.Resolved) map[string]string {
			if p.String("input_grid") == p.String("output_grid") {
				return map[string]string{"output_grid": "must differ from the input UGrid"}
			}
			return nil
		},
		Strategy: tool.InProcess{Run: func(ctx context.Context, call tool.Call) (tool.Result, error) {
			p, err := project(call)
			if err != nil {
				return tool.Result{}, err
			}
			in, err := p.Grid(call.Params.String("input_grid"))
			if err != nil {
				return tool.Result{}, err
			}
			dir := call.Params.String("gdal_tools_path")
			from := call.Params.String("epsg_code_from")
			to := call.Params.String("epsg_code_to")

			call.Logger.Info("Running gdaltransform to transform the locations.")
			points, err := transformPoints(ctx, opts.Runner, dir, in.Points, from, to)
			if err != nil {
				return tool.Result{}, err
			}

			call.Logger.Info("Running gdalsrsinfo to retrieve the new projection's WKT.")
			wkt, err := wktFromEPSG(ctx, opts.Runner, dir, to)
			if err != nil {
				return tool.Result{}, err
			}

			out := &mesh.UGrid{
				UUID:   opts.NewUUID(),
				Name:   call.Params.String("output_grid"),
				Points: points,
				Cells:  append([]mesh.Cell(nil), in.Cells...),
				WKT:    wkt,
			}
			if err := p.AddGrid(out); err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Artifacts: []tool.Artifact{gridArtifact(out)}}, nil
		}},
	}
}

func transformPoints(ctx context.Context, runner tool.ProcessRunner, dir string, points []mesh.Point, from, to string) ([]mesh.Point, error) {
	var stdin strings.Builder
	for _, pt := range points {
		fmt.Fprintf(&stdin, "%s %s %s\n",
			strconv.FormatFloat(pt.X, 'g', -1, 64),
			strconv.FormatFloat(pt.Y, 'g', -1, 64),
			strconv.FormatFloat(pt.Z, 'g', -1, 64))
	}
	out, err := runGDAL(ctx, runner, tool.Command{
		Path:  tool.CommandPath(dir, "gdaltransform"),
		Args:  []string{"-s_srs", "EPSG:" + from, "-t_srs", "EPSG:" + to},
		Stdin: stdin.String(),
	}, "Unable to run gdaltransform")
	if err != nil {
		return nil, err
	}

	transformed := make([]mesh.Point, 0, len(points))
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("unexpected gdaltransform output %q", scanner.Text())
		}
		var xyz [3]float64
		for i := 0; i < len(fields) && i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("unexpected gdaltransform output %q", scanner.Text())
			}
			xyz[i] = v
		}
		transformed = append(transformed, mesh.Point{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(transformed) != len(points) {
		return nil, fmt.Errorf("gdaltransform returned %d points for %d inputs", len(transformed), len(points))
	}
	return transformed, nil
}

func wktFromEPSG(ctx context.Context, runner tool.ProcessRunner, dir, epsg string) (string, error) {
	out, err := runGDAL(ctx, runner, tool.Command{
		Path: tool.CommandPath(dir, "gdalsrsinfo"),
		Args: []string{"-o", "wkt", "EPSG:" + epsg},
	}, "Unable to retrieve WKT for EPSG code")
	if err != nil {
		return "", err
	}
	wkt := strings.TrimSpace(string(out))
	if wkt == "" {
		return "", fmt.Errorf("gdalsrsinfo returned no WKT for EPSG:%s", epsg)
	}
	return wkt, nil
}

// runGDAL runs cmd and turns a non-zero exit into an error carrying stderr.
func runGDAL(ctx context.Context, runner tool.ProcessRunner, cmd tool.Command, failure string) ([]byte, error) {
	out, err := runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", failure, err)
	}
	if out.ExitCode != 0 {
		detail := strings.TrimSpace(string(out.Stderr))
		if detail == "" {
			detail = "exit status " + strconv.Itoa(out.ExitCode)
		}
		return nil, fmt.Errorf("%s: %s", failure, detail)
	}
	return out.Stdout, nil
}

func transformPoint(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "transform-point",
		DisplayName: "Transform Point",
		Category:    CategoryCoordinates,
		Version:     "1.0",
		Description: "Reproject a single coordinate between two EPSG codes with gdaltransform.",
		Params: []tool.ParamSpec{
			{Name: "x", Label: "X", Kind: tool.ParamNumber, Required: true},
			{Name: "y", Label: "Y", Kind: tool.ParamNumber, Required: true},
			epsgParam("epsg_code_from", "EPSG code from", true),
			epsgParam("epsg_code_to", "EPSG code to", true),
			gdalDirParam(opts),
		},
		Strategy: tool.ExternalProcess{
			Command:      []string{"gdaltransform", "-s_srs", "EPSG:{epsg_code_from}", "-t_srs", "EPSG:{epsg_code_to}"},
			Stdin:        "{x} {y}\n",
			ToolDirParam: "gdal_tools_path",
			Parse:        tool.ParseCoordinates,
		},
	}
}

func srsWKT(opts Options) tool.Definition {
	return tool.Definition{
		ID:          "srs-wkt",
		DisplayName: "Projection WKT from EPSG",
		Category:    CategoryCoordinates,
		Version:     "1.0",
		Description: "Look up the well-known text of an EPSG code with gdalsrsinfo.",
		Params: []tool.ParamSpec{
			epsgParam("epsg_code", "EPSG code", true),
			gdalDirParam(opts),
		},
		Strategy: tool.ExternalProcess{
			Command:      []string{"gdalsrsinfo", "-o", "wkt", "EPSG:{epsg_code}"},
			ToolDirParam: "gdal_tools_path",
			Parse:        tool.ParseText,
		},
	}
}
