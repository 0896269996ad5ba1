// Package adcirc reads and writes the ADCIRC ASCII files used by the built-in
// tools: fort.14 geometry, fort.13 nodal attributes and fort.63 water surface
// elevations.
package adcirc

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Aquaveo/xmstool-runner/mesh"
)

// GeographicWKT is assigned to meshes whose extents fit in lon/lat bounds.
const GeographicWKT = `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,` +
	`AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,` +
	`AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],` +
	`AUTHORITY["EPSG","4269"]]`

// LocalMetersWKT is assigned to every other mesh.
const LocalMetersWKT = `LOCAL_CS["None",LOCAL_DATUM["None",0],UNIT["Meter",1],AXIS["None",OTHER]]`

// maxPrealloc caps capacity taken from header counts; larger inputs grow by append.
const maxPrealloc = 1 << 16

// lineReader yields whitespace-split lines and remembers the line number for errors.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
	path    string
}

func newLineReader(r io.Reader, path string) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineReader{scanner: scanner, path: path}
}

func (r *lineReader) next() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", fmt.Errorf("%s: line %d: %w", r.path, r.line+1, err)
		}
		return "", fmt.Errorf("%s: line %d: %w", r.path, r.line+1, io.ErrUnexpectedEOF)
	}
	r.line++
	return r.scanner.Text(), nil
}

// fields returns the next line split on whitespace and commas.
func (r *lineReader) fields(want int) ([]string, error) {
	text, err := r.next()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
	if len(fields) < want {
		return nil, r.errorf("expected at least %d values, got %q", want, strings.TrimSpace(text))
	}
	return fields, nil
}

func (r *lineReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: line %d: %s", r.path, r.line, fmt.Sprintf(format, args...))
}

func (r *lineReader) atoi(field string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, r.errorf("%q is not an integer", field)
	}
	return n, nil
}

func (r *lineReader) atof(field string) (float64, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.ToLower(field), "d", "e"), 64)
	if err != nil {
		return 0, r.errorf("%q is not a number", field)
	}
	return f, nil
}

func openNonEmpty(path, kind string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("adcirc: error reading %s: file not found - %s", kind, path)
	}
	return os.Open(path)
}

// ReadFort14 reads the mesh geometry of a fort.14 file. Boundary sections
// after the elements are ignored.
func ReadFort14(path string, logger *slog.Logger) (*mesh.UGrid, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := openNonEmpty(path, "fort.14")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	logger.Info("Loading fort.14 from ASCII file...")
	grid, err := DecodeFort14(f, path, logger)
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("Successfully read %q.", path))
	return grid, nil
}

// DecodeFort14 parses fort.14 content from r. name identifies r in errors.
// The returned grid has no UUID; callers assign one when adding it to a project.
func DecodeFort14(r io.Reader, name string, logger *slog.Logger) (*mesh.UGrid, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lines := newLineReader(r, name)

	title, err := lines.next()
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	header, err := lines.fields(2)
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	numCells, err := lines.atoi(header[0])
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	numNodes, err := lines.atoi(header[1])
	if err != nil {
		return nil, fmt.Errorf("adcirc: %w", err)
	}
	if numNodes <= 0 || numCells < 0 {
		return nil, fmt.Errorf("adcirc: %w", lines.errorf("invalid element/node counts %d %d", numCells, numNodes))
	}

	logger.Info("Parsing mesh node locations...")
	points := make([]mesh.Point, 0, min(numNodes, maxPrealloc))
	index := make(map[int]int, min(numNodes, maxPrealloc))
	for range numNodes {
		fields, err := lines.fields(4)
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		id, err := lines.atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		var xyz [3]float64
		for i := range xyz {
			if xyz[i], err = lines.atof(fields[i+1]); err != nil {
				return nil, fmt.Errorf("adcirc: %w", err)
			}
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("adcirc: %w", lines.errorf("node %d is defined twice", id))
		}
		index[id] = len(points)
		// depths are positive down in the file
		points = append(points, mesh.Point{X: xyz[0], Y: xyz[1], Z: -xyz[2]})
	}

	logger.Info("Parsing mesh element definitions...")
	cells := make([]mesh.Cell, 0, min(numCells, maxPrealloc))
	for range numCells {
		fields, err := lines.fields(5)
		if err != nil {
			return nil, fmt.Errorf("adcirc: %w", err)
		}
		var cell mesh.Cell
		for i := range cell {
			id, err := lines.atoi(fields[i+2])
			if err != nil {
				return nil, fmt.Errorf("adcirc: %w", err)
			}
			idx, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("adcirc: %w", lines.errorf("element references unknown node %d", id))
			}
			cell[i] = idx
		}
		cells = append(cells, cell)
	}

	logger.Info("Building the UGrid...")
	grid := &mesh.UGrid{
		Name:   strings.TrimSpace(title),
		Points: points,
		Cells:  cells,
	}
	grid.WKT = assumeWKT(grid.Extents())
	return grid, nil
}

func assumeWKT(ext mesh.Extents) string {
	if ext.Min.X >= -180 && ext.Min.Y >= -90 && ext.Max.X <= 180 && ext.Max.Y <= 90 {
		return GeographicWKT
	}
	return LocalMetersWKT
}

// WriteFort14 writes grid as a fort.14 with empty boundary sections.
func WriteFort14(w io.Writer, grid *mesh.UGrid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, grid.Name)
	fmt.Fprintf(bw, "%d %d\n", len(grid.Cells), len(grid.Points))
	for i, p := range grid.Points {
		fmt.Fprintf(bw, "%d %s %s %s\n", i+1, formatFloat(p.X), formatFloat(p.Y), formatFloat(-p.Z))
	}
	for i, c := range grid.Cells {
		fmt.Fprintf(bw, "%d 3 %d %d %d\n", i+1, c[0]+1, c[1]+1, c[2]+1)
	}
	fmt.Fprintln(bw, "0 = Number of open boundaries")
	fmt.Fprintln(bw, "0 = Total number of open boundary nodes")
	fmt.Fprintln(bw, "0 = Number of land boundaries")
	fmt.Fprintln(bw, "0 = Total number of land boundary nodes")
	return bw.Flush()
}

// WriteFort14File writes grid to path, replacing any existing file.
func WriteFort14File(path string, grid *mesh.UGrid) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("adcirc: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("adcirc: close %s: %w", path, cerr)
		}
	}()
	if err := WriteFort14(f, grid); err != nil {
		return fmt.Errorf("adcirc: write %s: %w", path, err)
	}
	return nil
}

func formatFloat(f float64) string {
	if f == 0 {
		// avoid "-0" for zero depths
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
