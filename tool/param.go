package tool

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ParamKind is the declared type of a tool parameter.
type ParamKind string

const (
	ParamFileIn  ParamKind = "file_in"
	ParamFileOut ParamKind = "file_out"
	ParamNumber  ParamKind = "number"
	ParamInteger ParamKind = "integer"
	ParamText    ParamKind = "text"
	ParamChoice  ParamKind = "choice"
	ParamFlag    ParamKind = "flag"
)

var validParamKinds = []ParamKind{
	ParamFileIn,
	ParamFileOut,
	ParamNumber,
	ParamInteger,
	ParamText,
	ParamChoice,
	ParamFlag,
}

// ParseParamKind converts a declared kind name into a ParamKind.
func ParseParamKind(value string) (ParamKind, error) {
	kind := ParamKind(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(validParamKinds, kind) {
		return "", errorf(KindValidation, "", "unsupported parameter kind %q", value)
	}
	return kind, nil
}

// Constraints restrict the values a parameter accepts.
type Constraints struct {
	// Extensions lists accepted file extensions, compared case-insensitively.
	Extensions []string `json:"extensions,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	Choices    []string `json:"choices,omitempty"`
	// Directory makes a file_in parameter name a folder instead of a file.
	Directory bool `json:"directory,omitempty"`
}

// ParamSpec declares one named input of a tool.
type ParamSpec struct {
	Name        string      `json:"name"`
	Label       string      `json:"label,omitempty"`
	Description string      `json:"description,omitempty"`
	Kind        ParamKind   `json:"kind"`
	Required    bool        `json:"required,omitempty"`
	Default     string      `json:"default,omitempty"`
	Constraints Constraints `json:"constraints,omitzero"`
}

// DisplayLabel returns Label, falling back to Name.
func (p ParamSpec) DisplayLabel() string {
	if label := strings.TrimSpace(p.Label); label != "" {
		return label
	}
	return p.Name
}

// Value is a validated parameter value. The zero Value of a kind means "not set".
type Value struct {
	Kind ParamKind
	// Text is the canonical textual form used for command substitution.
	Text   string
	Set    bool
	number float64
	flag   bool
}

// String returns the canonical text.
func (v Value) String() string {
	return v.Text
}

// Float returns numeric values as float64.
func (v Value) Float() float64 {
	return v.number
}

// Int returns numeric values truncated to int64.
func (v Value) Int() int64 {
	return int64(v.number)
}

// Bool returns the value of a flag parameter.
func (v Value) Bool() bool {
	return v.flag
}

// Validate converts a raw user-entered value into a Value.
//
// An empty raw value resolves to the default. A required parameter with
// neither fails with KindMissingParameter. Validation never creates, opens
// or modifies files.
func (p ParamSpec) Validate(raw string) (Value, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = strings.TrimSpace(p.Default)
	}
	if text == "" {
		if p.Required {
			return Value{}, errorf(KindMissingParameter, p.Name, "a value is required")
		}
		return Value{Kind: p.Kind}, nil
	}

	value, err := p.parse(text)
	if err != nil {
		return Value{}, err
	}
	if err := p.checkFilesystem(value.Text); err != nil {
		return Value{}, err
	}
	return value, nil
}

// parse applies the kind and constraint checks that do not touch the filesystem.
func (p ParamSpec) parse(text string) (Value, error) {
	switch p.Kind {
	case ParamNumber, ParamInteger:
		return p.parseNumber(text)
	case ParamFlag:
		flag, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, errorf(KindValidation, p.Name, "%q is not a boolean", text)
		}
		return Value{Kind: p.Kind, Text: strconv.FormatBool(flag), Set: true, flag: flag}, nil
	case ParamChoice:
		for _, choice := range p.Constraints.Choices {
			if strings.EqualFold(choice, text) {
				return Value{Kind: p.Kind, Text: choice, Set: true}, nil
			}
		}
		return Value{}, errorf(KindValidation, p.Name, "%q is not one of %s", text, strings.Join(p.Constraints.Choices, ", "))
	case ParamText:
		return Value{Kind: p.Kind, Text: text, Set: true}, nil
	case ParamFileIn, ParamFileOut:
		path := filepath.Clean(text)
		if err := p.checkExtension(path); err != nil {
			return Value{}, err
		}
		return Value{Kind: p.Kind, Text: path, Set: true}, nil
	default:
		return Value{}, errorf(KindValidation, p.Name, "unsupported parameter kind %q", p.Kind)
	}
}

func (p ParamSpec) parseNumber(text string) (Value, error) {
	var number float64
	if p.Kind == ParamInteger {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, errorf(KindValidation, p.Name, "%q is not an integer", text)
		}
		number = float64(n)
		text = strconv.FormatInt(n, 10)
	} else {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, errorf(KindValidation, p.Name, "%q is not a number", text)
		}
		number = f
		text = strconv.FormatFloat(f, 'g', -1, 64)
	}

	if lo := p.Constraints.Min; lo != nil && number < *lo {
		return Value{}, errorf(KindValidation, p.Name, "%s is below the minimum %s", text, formatBound(*lo))
	}
	if hi := p.Constraints.Max; hi != nil && number > *hi {
		return Value{}, errorf(KindValidation, p.Name, "%s is above the maximum %s", text, formatBound(*hi))
	}
	return Value{Kind: p.Kind, Text: text, Set: true, number: number}, nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (p ParamSpec) checkExtension(path string) error {
	if len(p.Constraints.Extensions) == 0 || p.Constraints.Directory {
		return nil
	}
	ext := filepath.Ext(path)
	for _, allowed := range p.Constraints.Extensions {
		if strings.EqualFold(normalizeExtension(allowed), ext) {
			return nil
		}
	}
	return errorf(KindValidation, p.Name, "%q does not have an accepted extension (%s)", path, strings.Join(p.Constraints.Extensions, ", "))
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (p ParamSpec) checkFilesystem(path string) error {
	switch p.Kind {
	case ParamFileIn:
		return p.checkInputPath(path)
	case ParamFileOut:
		return p.checkOutputPath(path)
	default:
		return nil
	}
}

func (p ParamSpec) checkInputPath(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newError(KindNotFound, p.Name, "no such file or directory: "+path, err)
	}
	if err != nil {
		return newError(KindValidation, p.Name, "cannot access "+path, err)
	}
	if p.Constraints.Directory && !info.IsDir() {
		return errorf(KindValidation, p.Name, "%q is not a directory", path)
	}
	if !p.Constraints.Directory && info.IsDir() {
		return errorf(KindValidation, p.Name, "%q is a directory", path)
	}
	return nil
}

func (p ParamSpec) checkOutputPath(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return errorf(KindValidation, p.Name, "%q is a directory", path)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return newError(KindValidation, p.Name, "output directory does not exist: "+dir, err)
	}
	if err != nil {
		return newError(KindValidation, p.Name, "cannot access output directory "+dir, err)
	}
	if !info.IsDir() {
		return errorf(KindValidation, p.Name, "%q is not a directory", dir)
	}
	if info.Mode().Perm()&0o222 == 0 {
		return errorf(KindValidation, p.Name, "output directory %q is not writable", dir)
	}
	return nil
}

// validateDeclaration checks a spec's own consistency at registration time.
func (p ParamSpec) validateDeclaration() error {
	if strings.TrimSpace(p.Name) == "" {
		return errorf(KindRegistration, "", "parameter name is required")
	}
	if !slices.Contains(validParamKinds, p.Kind) {
		return errorf(KindRegistration, p.Name, "unsupported parameter kind %q", p.Kind)
	}
	c := p.Constraints
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return errorf(KindRegistration, p.Name, "min %s is greater than max %s", formatBound(*c.Min), formatBound(*c.Max))
	}
	if p.Kind == ParamChoice && len(c.Choices) == 0 {
		return errorf(KindRegistration, p.Name, "choice parameter declares no choices")
	}
	if c.Directory && p.Kind != ParamFileIn {
		return errorf(KindRegistration, p.Name, "directory constraint only applies to file_in")
	}
	if strings.TrimSpace(p.Default) != "" {
		if _, err := p.parse(strings.TrimSpace(p.Default)); err != nil {
			return newError(KindRegistration, p.Name, "default does not satisfy constraints: "+detailOf(err), err)
		}
	}
	return nil
}

func cloneParamSpec(p ParamSpec) ParamSpec {
	out := p
	out.Constraints.Extensions = slices.Clone(p.Constraints.Extensions)
	out.Constraints.Choices = slices.Clone(p.Constraints.Choices)
	if p.Constraints.Min != nil {
		lo := *p.Constraints.Min
		out.Constraints.Min = &lo
	}
	if p.Constraints.Max != nil {
		hi := *p.Constraints.Max
		out.Constraints.Max = &hi
	}
	return out
}

// Resolved maps parameter names to validated values for one invocation.
type Resolved map[string]Value

// Has reports whether name was given a value (directly or by default).
func (r Resolved) Has(name string) bool {
	return r[name].Set
}

// String returns the canonical text of name, or "" when unset.
func (r Resolved) String(name string) string {
	return r[name].Text
}

// Float returns the numeric value of name.
func (r Resolved) Float(name string) float64 {
	return r[name].Float()
}

// Int returns the integer value of name.
func (r Resolved) Int(name string) int64 {
	return r[name].Int()
}

// Bool returns the flag value of name.
func (r Resolved) Bool(name string) bool {
	return r[name].Bool()
}
