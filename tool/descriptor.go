package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Origin names the execution strategy of a descriptor.
type Origin string

const (
	OriginInProcess       Origin = "in_process"
	OriginExternalProcess Origin = "external_process"
)

// Strategy is either InProcess or ExternalProcess.
type Strategy interface {
	origin() Origin
}

// Call is what an in-process tool receives for one invocation.
type Call struct {
	Params Resolved
	// Workspace is the optional in-memory handle shared across sequential
	// invocations. It is passed by reference and never copied.
	Workspace any
	// Logger records progress; Info and above also become outcome messages.
	Logger *slog.Logger
}

// InProcessFunc runs a tool inside the host process.
type InProcessFunc func(ctx context.Context, call Call) (Result, error)

// InProcess executes a tool by calling Run.
type InProcess struct {
	Run InProcessFunc
}

func (InProcess) origin() Origin { return OriginInProcess }

// ProcessOutput is everything an external tool produced.
type ProcessOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// OutputParser interprets the output of an external tool that exited 0.
type OutputParser func(out ProcessOutput) (Result, error)

// ExternalProcess executes a tool by launching a command and parsing stdout.
//
// Command and Stdin are templates: "{name}" is replaced by the canonical text
// of the parameter called name, or by nothing when it is unset. A command
// token that is exactly one placeholder is dropped when that parameter is
// unset. A token holding a placeholder and whitespace, such as
// "-s_srs {src}", is a flag group: it expands to one argument per field and
// is dropped whole when any parameter it names is unset.
type ExternalProcess struct {
	Command []string
	Stdin   string
	Env     map[string]string
	// ToolDirParam names a parameter holding the directory of Command[0].
	ToolDirParam string
	// Timeout bounds the child process; zero means no limit.
	Timeout time.Duration
	Parse   OutputParser
}

func (ExternalProcess) origin() Origin { return OriginExternalProcess }

// CheckFunc performs cross-parameter checks after every field validated.
// It returns error messages keyed by parameter name.
type CheckFunc func(params Resolved) map[string]string

// Definition is the input for NewDescriptor.
type Definition struct {
	ID          string
	DisplayName string
	Category    string
	Version     string
	Description string
	Params      []ParamSpec
	Strategy    Strategy
	Check       CheckFunc
}

// Descriptor is an immutable, registered tool. Identity is by ID.
type Descriptor struct {
	id          string
	displayName string
	category    string
	version     string
	description string
	params      []ParamSpec
	strategy    Strategy
	check       CheckFunc
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// NewDescriptor validates def and freezes it into a Descriptor.
func NewDescriptor(def Definition) (Descriptor, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return Descriptor{}, errorf(KindRegistration, "", "tool id is required")
	}

	params := make([]ParamSpec, 0, len(def.Params))
	seen := make(map[string]struct{}, len(def.Params))
	for _, spec := range def.Params {
		if err := spec.validateDeclaration(); err != nil {
			return Descriptor{}, newError(KindRegistration, "", id+": "+detailOf(err), err)
		}
		if _, dup := seen[spec.Name]; dup {
			return Descriptor{}, errorf(KindRegistration, spec.Name, "%s: parameter declared twice", id)
		}
		seen[spec.Name] = struct{}{}
		params = append(params, cloneParamSpec(spec))
	}

	strategy, err := freezeStrategy(id, def.Strategy, seen)
	if err != nil {
		return Descriptor{}, err
	}

	displayName := strings.TrimSpace(def.DisplayName)
	if displayName == "" {
		displayName = id
	}
	return Descriptor{
		id:          id,
		displayName: displayName,
		category:    strings.TrimSpace(def.Category),
		version:     strings.TrimSpace(def.Version),
		description: strings.TrimSpace(def.Description),
		params:      params,
		strategy:    strategy,
		check:       def.Check,
	}, nil
}

// MustDescriptor is NewDescriptor for static tables; it panics on error.
func MustDescriptor(def Definition) Descriptor {
	d, err := NewDescriptor(def)
	if err != nil {
		panic(err)
	}
	return d
}

func freezeStrategy(id string, strategy Strategy, params map[string]struct{}) (Strategy, error) {
	switch s := strategy.(type) {
	case InProcess:
		if s.Run == nil {
			return nil, errorf(KindRegistration, "", "%s: in-process strategy has no function", id)
		}
		return s, nil
	case ExternalProcess:
		if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
			return nil, errorf(KindRegistration, "", "%s: external command is empty", id)
		}
		if s.Parse == nil {
			return nil, errorf(KindRegistration, "", "%s: external strategy has no output parser", id)
		}
		if s.ToolDirParam != "" {
			if _, ok := params[s.ToolDirParam]; !ok {
				return nil, errorf(KindRegistration, s.ToolDirParam, "%s: tool directory parameter is not declared", id)
			}
		}
		templates := append(slices.Clone(s.Command), s.Stdin)
		for _, value := range s.Env {
			templates = append(templates, value)
		}
		for _, template := range templates {
			for _, name := range placeholders(template) {
				if _, ok := params[name]; !ok {
					return nil, errorf(KindRegistration, name, "%s: placeholder references an undeclared parameter", id)
				}
			}
		}
		s.Command = slices.Clone(s.Command)
		s.Env = maps.Clone(s.Env)
		return s, nil
	case nil:
		return nil, errorf(KindRegistration, "", "%s: strategy is required", id)
	default:
		return nil, errorf(KindRegistration, "", "%s: unsupported strategy %T", id, strategy)
	}
}

func placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

func (d Descriptor) ID() string          { return d.id }
func (d Descriptor) DisplayName() string { return d.displayName }
func (d Descriptor) Category() string    { return d.category }
func (d Descriptor) Version() string     { return d.version }
func (d Descriptor) Description() string { return d.description }

// Strategy returns the execution strategy.
func (d Descriptor) Strategy() Strategy { return d.strategy }

// Origin reports which strategy the descriptor uses.
func (d Descriptor) Origin() Origin {
	if d.strategy == nil {
		return ""
	}
	return d.strategy.origin()
}

// Params returns the parameters in presentation order.
func (d Descriptor) Params() []ParamSpec {
	out := make([]ParamSpec, 0, len(d.params))
	for _, p := range d.params {
		out = append(out, cloneParamSpec(p))
	}
	return out
}

// Param looks up a parameter by name.
func (d Descriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.params {
		if p.Name == name {
			return cloneParamSpec(p), true
		}
	}
	return ParamSpec{}, false
}

// Equal reports whether both descriptors carry the same id.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.id == other.id
}

// IsZero reports whether d was never constructed.
func (d Descriptor) IsZero() bool {
	return d.id == ""
}

type descriptorJSON struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Category    string      `json:"category,omitempty"`
	Version     string      `json:"version,omitempty"`
	Description string      `json:"description,omitempty"`
	Origin      Origin      `json:"origin"`
	Params      []ParamSpec `json:"params"`
}

// MarshalJSON renders the presentation view of the descriptor.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorJSON{
		ID:          d.id,
		DisplayName: d.displayName,
		Category:    d.category,
		Version:     d.version,
		Description: d.description,
		Origin:      d.Origin(),
		Params:      d.Params(),
	})
}
