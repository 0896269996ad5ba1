package tool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Built-in output parsers for external tools, selectable by name from a catalog file.
var parsers = map[string]OutputParser{
	"coordinates": ParseCoordinates,
	"lines":       ParseLines,
	"text":        ParseText,
	"json":        ParseJSON,
}

// Parser returns the built-in output parser registered under name.
func Parser(name string) (OutputParser, bool) {
	p, ok := parsers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ParserNames lists the built-in output parsers.
func ParserNames() []string {
	return []string{"coordinates", "lines", "text", "json"}
}

// ParseCoordinates reads one coordinate per non-blank line. Components are
// separated by commas or whitespace; each line must hold two or three numbers.
// A single line yields a "coordinate" value artifact, several lines yield
// "coordinates".
func ParseCoordinates(out ProcessOutput) (Result, error) {
	var coords [][]float64
	scanner := bufio.NewScanner(bytes.NewReader(out.Stdout))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 2 || len(fields) > 3 {
			return Result{}, errorf(KindOutputParse, "", "line %d: expected 2 or 3 coordinate values, got %q", line, text)
		}
		coord := make([]float64, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return Result{}, errorf(KindOutputParse, "", "line %d: %q is not a number", line, field)
			}
			coord = append(coord, v)
		}
		coords = append(coords, coord)
	}
	if err := scanner.Err(); err != nil {
		return Result{}, newError(KindOutputParse, "", "read output", err)
	}
	switch len(coords) {
	case 0:
		return Result{}, errorf(KindOutputParse, "", "no coordinates in output")
	case 1:
		return Result{Artifacts: []Artifact{{Kind: ArtifactValue, Name: "coordinate", Value: coords[0]}}}, nil
	default:
		return Result{Artifacts: []Artifact{{Kind: ArtifactValue, Name: "coordinates", Value: coords}}}, nil
	}
}

// ParseLines returns every non-blank line of stdout as a message.
func ParseLines(out ProcessOutput) (Result, error) {
	var lines []string
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return Result{
		Artifacts: []Artifact{{Kind: ArtifactValue, Name: "lines", Value: lines}},
		Messages:  lines,
	}, nil
}

// ParseText returns trimmed stdout as a single "text" value. Empty output is an error.
func ParseText(out ProcessOutput) (Result, error) {
	text := strings.TrimSpace(string(out.Stdout))
	if text == "" {
		return Result{}, errorf(KindOutputParse, "", "command produced no output")
	}
	return Result{Artifacts: []Artifact{{Kind: ArtifactValue, Name: "text", Value: text}}}, nil
}

// ParseJSON decodes stdout as one JSON document into a "json" value.
func ParseJSON(out ProcessOutput) (Result, error) {
	var value any
	if err := json.Unmarshal(bytes.TrimSpace(out.Stdout), &value); err != nil {
		return Result{}, newError(KindOutputParse, "", "decode json output", err)
	}
	return Result{Artifacts: []Artifact{{Kind: ArtifactValue, Name: "json", Value: value}}}, nil
}
