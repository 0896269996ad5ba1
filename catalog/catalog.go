// Package catalog builds the tool registry at startup from the built-in
// toolbox and from tools declared in a YAML catalog file.
package catalog

import (
	"fmt"

	"github.com/Aquaveo/xmstool-runner/tool"
)

// Entry produces one descriptor for the registration table.
type Entry func() (tool.Descriptor, error)

// Static wraps an already built descriptor.
func Static(d tool.Descriptor) Entry {
	return func() (tool.Descriptor, error) { return d, nil }
}

// Define builds a descriptor from def when the table is built.
func Define(def tool.Definition) Entry {
	return func() (tool.Descriptor, error) { return tool.NewDescriptor(def) }
}

// Build registers every entry in order. The first invalid or duplicate entry
// aborts the build with a KindRegistration error.
func Build(entries ...[]Entry) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	position := 0
	for _, group := range entries {
		for _, entry := range group {
			position++
			d, err := entry()
			if err != nil {
				return nil, registrationError(fmt.Sprintf("catalog entry %d", position), err)
			}
			if err := reg.Register(d); err != nil {
				return nil, registrationError(fmt.Sprintf("catalog entry %d (%s)", position, d.ID()), err)
			}
		}
	}
	return reg, nil
}

func registrationError(where string, err error) error {
	return &tool.Error{
		Kind:    tool.KindRegistration,
		Message: where + ": " + err.Error(),
		Cause:   err,
	}
}
