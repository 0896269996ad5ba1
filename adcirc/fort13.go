package adcirc

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aquaveo/xmstool-runner/mesh"
)

// GeoidOffsetAttribute is stored as a constant instead of a dataset.
const GeoidOffsetAttribute = "sea_surface_height_above_geoid"

var attributeDisplayNames = map[string][]string{
	"surface_submergence_state": {"StartDry"},
	"surface_directional_effective_roughness_length": {
		"Z0Land000", "Z0Land030", "Z0Land060", "Z0Land090", "Z0Land120", "Z0Land150",
		"Z0Land180", "Z0Land210", "Z0Land240", "Z0Land270", "Z0Land300", "Z0Land330",
	},
	"surface_canopy_coefficient":                               {"VCanopy"},
	"bottom_roughness_length":                                  {"Z0b_var"},
	"wave_refraction_in_swan":                                  {"SwanWaveRefrac"},
	"average_horizontal_eddy_viscosity_in_sea_water_wrt_depth": {"EVC"},
	"primitive_weighting_in_continuity_equation":               {"TAU0"},
	"quadratic_friction_coefficient_at_sea_floor":              {"Quadratic friction"},
	"bridge_pilings_friction_paramenters":                      {"BK", "BAlpha", "BDelX", "POAN"},
	"mannings_n_at_sea_floor":                                  {"ManningsN"},
	"chezy_friction_coefficient_at_sea_floor":                  {"ChezyFric"},
	"elemental_slope_limiter":                                  {"ElSloLim"},
	"advection_state":                                          {"AdvState"},
	"initial_river_elevation":                                  {"IniRivEle"},
}

// DisplayNames returns the dataset names of a known nodal attribute, or nil.
func DisplayNames(attribute string) []string {
	names := attributeDisplayNames[attribute]
	return append([]string(nil), names...)
}

// NodalAttributes is the content of a fort.13 file.
type NodalAttributes struct {
	// Datasets holds one dataset per attribute component, in file order.
	// Their UUIDs are left for the caller to assign.
	Datasets []*mesh.Dataset
	// Constants holds attributes stored as a single value, keyed by name.
	Constants map[string]float64
}

type attributeInfo struct {
	units    string
	defaults []float64
}

// ReadFort13 reads the nodal attributes of a fort.13 file defined on grid.
// Every attribute is listed twice: once with its defaults and once as a
// sparse list of nodes whose values differ.
func ReadFort13(path string, grid *mesh.UGrid, logger *slog.Logger) (*NodalAttributes, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if grid == nil {
		return nil, errors.New("adcirc: fort.13 needs a grid")
	}
	f, err := openNonEmpty(path, "fort.13")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := newLineReader(f, path)
	if _, err := lines.next(); err != nil { // grid name
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	numNodes, err := readCount(lines)
	if err != nil {
		return nil, err
	}
	numAtts, err := readCount(lines)
	if err != nil {
		return nil, err
	}
	switch {
	case numNodes <= 0:
		return nil, errors.New("adcirc: invalid fort.13 file")
	case numNodes != len(grid.Points):
		return nil, fmt.Errorf("adcirc: invalid number of nodes: fort.13 has %d, grid %q has %d", numNodes, grid.Name, len(grid.Points))
	case numAtts <= 0:
		return nil, fmt.Errorf("adcirc: %q contains no nodal attributes", path)
	}

	logger.Info("Reading nodal attribute properties...")
	infos := make(map[string]attributeInfo, min(numAtts, maxPrealloc))
	for range numAtts {
		fields, err := lines.fields(1)
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		name := fields[0]
		units, err := lines.next()
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		// the component count is implied by the defaults line
		if _, err := lines.next(); err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		values, err := lines.fields(1)
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		defaults := make([]float64, len(values))
		for i, v := range values {
			if defaults[i], err = lines.atof(v); err != nil {
				return nil, fmt.Errorf("adcirc: %w", err)
			}
		}
		infos[name] = attributeInfo{units: strings.TrimSpace(units), defaults: defaults}
	}

	out := &NodalAttributes{Constants: map[string]float64{}}
	for range numAtts {
		name, err := nextNonBlank(lines)
		if err != nil {
			return nil, err
		}
		info, ok := infos[name]
		if !ok {
			return nil, fmt.Errorf("adcirc: %w", lines.errorf("attribute %q has no properties section", name))
		}
		components := len(info.defaults)
		noun := "dataset"
		if components > 1 {
			noun = "datasets"
		}
		logger.Info(fmt.Sprintf("Reading value for nodal attribute: %s (%d %s)", name, components, noun))

		values, err := readExceptions(lines, info.defaults, numNodes)
		if err != nil {
			return nil, err
		}

		if name == GeoidOffsetAttribute {
			out.Constants[GeoidOffsetAttribute] = mean(values[0])
			continue
		}
		names := DisplayNames(name)
		if len(names) != components {
			logger.Warn(fmt.Sprintf("Unrecognized nodal attribute found: %s", name))
			names = make([]string, components)
			for i := range names {
				if components == 1 {
					names[i] = name
				} else {
					names[i] = fmt.Sprintf("%s (%d)", name, i+1)
				}
			}
		}
		for i := range components {
			logger.Info(fmt.Sprintf("Creating dataset %d of %d...", i+1, components))
			out.Datasets = append(out.Datasets, &mesh.Dataset{
				Name:     names[i],
				GridUUID: grid.UUID,
				Units:    info.units,
				Times:    []float64{0},
				Values:   [][]float64{values[i]},
			})
		}
	}

	logger.Info(fmt.Sprintf("Successfully read ADCIRC nodal attributes from %q.", path))
	return out, nil
}

func readCount(lines *lineReader) (int, error) {
	fields, err := lines.fields(1)
	if err != nil {
		return 0, fmt.Errorf("adcirc: %w", err)
	}
	n, err := lines.atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("adcirc: %w", err)
	}
	return n, nil
}

// nextNonBlank returns the first token of the next non-blank line. Files in the
// wild put blank lines between attribute value sections.
func nextNonBlank(lines *lineReader) (string, error) {
	for {
		text, err := lines.next()
		if err != nil {
			return "", fmt.Errorf("adcirc: %w", err)
		}
		if fields := strings.Fields(text); len(fields) > 0 {
			return fields[0], nil
		}
	}
}

// readExceptions expands the defaults to every node and applies the sparse
// per-node overrides that follow.
func readExceptions(lines *lineReader, defaults []float64, numNodes int) ([][]float64, error) {
	values := make([][]float64, len(defaults))
	for i, def := range defaults {
		values[i] = make([]float64, numNodes)
		for n := range values[i] {
			values[i][n] = def
		}
	}

	count, err := readCount(lines)
	if err != nil {
		return nil, err
	}
	for range count {
		fields, err := lines.fields(len(defaults) + 1)
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		node, err := lines.atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		if node < 1 || node > numNodes {
			return nil, fmt.Errorf("adcirc: %w", lines.errorf("node %d is out of range 1..%d", node, numNodes))
		}
		for i := range defaults {
			if values[i][node-1], err = lines.atof(fields[i+1]); err != nil {
				return nil, fmt.Errorf("adcirc: %w", err)
			}
		}
	}
	return values, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
