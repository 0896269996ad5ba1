package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Aquaveo/xmstool-runner/tool"
)

// File is a decoded catalog file.
type File struct {
	Tools []ExternalTool `yaml:"tools"`
}

// ExternalTool declares an external-process tool.
type ExternalTool struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Category     string            `yaml:"category"`
	Version      string            `yaml:"version"`
	Description  string            `yaml:"description"`
	Command      []string          `yaml:"command"`
	Stdin        string            `yaml:"stdin"`
	Env          map[string]string `yaml:"env"`
	ToolDirParam string            `yaml:"tool_dir_param"`
	Timeout      string            `yaml:"timeout"`
	Parser       string            `yaml:"parser"`
	Params       []Param           `yaml:"params"`
}

// Param declares one parameter of an external tool.
type Param struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Required    bool     `yaml:"required"`
	Default     any      `yaml:"default"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Extensions  []string `yaml:"extensions"`
	Choices     []string `yaml:"choices"`
	Directory   bool     `yaml:"directory"`
}

var fileSchema = gojsonschema.NewStringLoader(FileSchema)

// LoadFile reads and validates a catalog file and returns one entry per tool.
// Every failure is a registration error.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, registrationError("catalog file "+path, err)
	}
	entries, err := parse(data)
	if err != nil {
		return nil, registrationError("catalog file "+path, err)
	}
	return entries, nil
}

// Parse validates catalog YAML against FileSchema and converts each tool.
// Every failure is a registration error.
func Parse(data []byte) ([]Entry, error) {
	entries, err := parse(data)
	if err != nil {
		return nil, registrationError("catalog file", err)
	}
	return entries, nil
}

func parse(data []byte) ([]Entry, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("catalog file is empty")
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	entries := make([]Entry, 0, len(file.Tools))
	for _, t := range file.Tools {
		def, err := t.definition()
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.ID, err)
		}
		entries = append(entries, Define(def))
	}
	return entries, nil
}

func validateSchema(doc any) error {
	result, err := gojsonschema.Validate(fileSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(messages, "; "))
	}
	return nil
}

func (t ExternalTool) definition() (tool.Definition, error) {
	parse, ok := tool.Parser(t.Parser)
	if !ok {
		return tool.Definition{}, fmt.Errorf("unknown parser %q", t.Parser)
	}
	var timeout time.Duration
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return tool.Definition{}, fmt.Errorf("timeout: %w", err)
		}
		timeout = d
	}

	command := make([]string, len(t.Command))
	for i, token := range t.Command {
		command[i] = os.ExpandEnv(token)
	}
	var env map[string]string
	if len(t.Env) > 0 {
		env = make(map[string]string, len(t.Env))
		for key, value := range t.Env {
			env[key] = os.ExpandEnv(value)
		}
	}

	params := make([]tool.ParamSpec, 0, len(t.Params))
	for _, p := range t.Params {
		kind, err := tool.ParseParamKind(p.Kind)
		if err != nil {
			return tool.Definition{}, fmt.Errorf("param %q: %w", p.Name, err)
		}
		params = append(params, tool.ParamSpec{
			Name:        p.Name,
			Label:       p.Label,
			Description: p.Description,
			Kind:        kind,
			Required:    p.Required,
			Default:     formatDefault(p.Default),
			Constraints: tool.Constraints{
				Extensions: p.Extensions,
				Min:        p.Min,
				Max:        p.Max,
				Choices:    p.Choices,
				Directory:  p.Directory,
			},
		})
	}

	return tool.Definition{
		ID:          t.ID,
		DisplayName: t.Name,
		Category:    t.Category,
		Version:     t.Version,
		Description: t.Description,
		Params:      params,
		Strategy: tool.ExternalProcess{
			Command:      command,
			Stdin:        t.Stdin,
			Env:          env,
			ToolDirParam: t.ToolDirParam,
			Timeout:      timeout,
			Parse:        parse,
		},
	}, nil
}

func formatDefault(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
