package adcirc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aquaveo/xmstool-runner/mesh"
)

// NullValue is the value ADCIRC writes for dry nodes.
const NullValue = -99999.0

// DefaultElevationName names the water surface dataset read from a fort.63.
const DefaultElevationName = "Water Surface (eta)"

// ReadFort63 reads the ASCII water surface elevation time series of a fort.63
// file into one dataset on grid. Both the full layout, with a value for every
// node each step, and the sparse layout, with a default plus the listed nodes,
// are accepted.
func ReadFort63(path, name string, grid *mesh.UGrid, logger *slog.Logger) (*mesh.Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if grid == nil {
		return nil, errors.New("adcirc: fort.63 needs a grid")
	}
	if name == "" {
		name = DefaultElevationName
	}
	f, err := openNonEmpty(path, "fort.63")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := newLineReader(f, path)
	if _, err := lines.next(); err != nil { // run description
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	header, err := lines.fields(5)
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	var counts [2]int
	for i := range counts {
		if counts[i], err = lines.atoi(header[i]); err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
	}
	numSteps, numNodes := counts[0], counts[1]
	recordType, err := lines.atoi(header[4])
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	switch {
	case numSteps <= 0:
		return nil, fmt.Errorf("adcirc: %q contains no time steps", path)
	case numNodes != len(grid.Points):
		return nil, fmt.Errorf("adcirc: invalid number of nodes: fort.63 has %d, grid %q has %d", numNodes, grid.Name, len(grid.Points))
	case recordType != 1:
		return nil, fmt.Errorf("adcirc: %w", lines.errorf("expected scalar records (type 1), got type %d", recordType))
	}

	logger.Info(fmt.Sprintf("Reading %q values from %s.", name, path))
	nullValue := NullValue
	dataset := &mesh.Dataset{
		Name:      name,
		GridUUID:  grid.UUID,
		Units:     "m",
		TimeUnits: "Seconds",
		Times:     make([]float64, 0, min(numSteps, maxPrealloc)),
		Values:    make([][]float64, 0, min(numSteps, maxPrealloc)),
		NullValue: &nullValue,
	}
	for range numSteps {
		time, values, err := readFort63Step(lines, numNodes)
		if err != nil {
			return nil, err
		}
		dataset.Times = append(dataset.Times, time)
		dataset.Values = append(dataset.Values, values)
	}

	logger.Info(fmt.Sprintf("Read %d time steps for the %q dataset.", numSteps, name))
	return dataset, nil
}

// readFort63Step reads one "TIME IT [NNDSETSE DEFAULT]" block.
func readFort63Step(lines *lineReader, numNodes int) (float64, []float64, error) {
	fields, err := lines.fields(2)
	if err != nil {
		return 0, nil, fmt.Errorf("adcirc: %w", err)
	}
	time, err := lines.atof(fields[0])
	if err != nil {
		return 0, nil, fmt.Errorf("adcirc: %w", err)
	}

	values := make([]float64, numNodes)
	listed := numNodes
	if len(fields) >= 4 {
		if listed, err = lines.atoi(fields[2]); err != nil {
			return 0, nil, fmt.Errorf("adcirc: %w", err)
		}
		def, err := lines.atof(fields[3])
		if err != nil {
			return 0, nil, fmt.Errorf("adcirc: %w", err)
		}
		if listed < 0 || listed > numNodes {
			return 0, nil, fmt.Errorf("adcirc: %w", lines.errorf("%d listed nodes is out of range 0..%d", listed, numNodes))
		}
		for i := range values {
			values[i] = def
		}
	}

	for range listed {
		fields, err := lines.fields(2)
		if err != nil {
			return 0, nil, fmt.Errorf("adcirc: %w", err)
		}
		node, err := lines.atoi(fields[0])
		if err != nil {
			return 0, nil, fmt.Errorf("adcirc: %w", err)
		}
		if node < 1 || node > numNodes {
			return 0, nil, fmt.Errorf("adcirc: %w", lines.errorf("node %d is out of range 1..%d", node, numNodes))
		}
		if values[node-1], err = lines.atof(fields[1]); err != nil {
			return 0, nil, fmt.Errorf("adcirc: %w", err)
		}
	}
	return time, values, nil
}
