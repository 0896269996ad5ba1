package tool

import (
	"iter"
	"slices"
	"strings"
	"sync"
)

// Registry holds the tool catalog in registration order. It is filled once at
// startup and only read afterwards, but reads and writes are safe to overlap.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
	order []string // preserves registration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Descriptor),
	}
}

// Register adds a descriptor. A second descriptor with the same id fails with
// KindDuplicateID and leaves the registry unchanged.
func (r *Registry) Register(d Descriptor) error {
	if d.IsZero() {
		return errorf(KindRegistration, "", "descriptor was not built with NewDescriptor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.ID()]; exists {
		return errorf(KindDuplicateID, "", "tool %q is already registered", d.ID())
	}
	r.tools[d.ID()] = d
	r.order = append(r.order, d.ID())
	return nil
}

// Find returns the descriptor registered under id.
func (r *Registry) Find(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[id]
	if !ok {
		return Descriptor{}, errorf(KindNotFound, "", "no tool with id %q", id)
	}
	return d, nil
}

// All yields every descriptor in registration order. Each iteration starts
// from a fresh snapshot, so the sequence can be ranged over repeatedly.
func (r *Registry) All() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, d := range r.snapshot() {
			if !yield(d) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Categories returns the distinct categories in first-seen order.
func (r *Registry) Categories() []string {
	var out []string
	for d := range r.All() {
		if !slices.Contains(out, d.Category()) {
			out = append(out, d.Category())
		}
	}
	return out
}

// Search yields the descriptors matching every term. A term matches when it
// occurs, ignoring case, in the id, display name, category or description.
func (r *Registry) Search(terms ...string) iter.Seq[Descriptor] {
	needles := make([]string, 0, len(terms))
	for _, term := range terms {
		for _, word := range strings.Fields(strings.ToLower(term)) {
			needles = append(needles, word)
		}
	}
	return func(yield func(Descriptor) bool) {
		for d := range r.All() {
			if !matchesAll(d, needles) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

func matchesAll(d Descriptor, needles []string) bool {
	haystack := strings.ToLower(strings.Join([]string{
		d.ID(), d.DisplayName(), d.Category(), d.Description(),
	}, "\n"))
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
