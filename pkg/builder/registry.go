package builder

import (
	"fmt"
	"sort"

	"github.com/heromessaging/messaging/pkg/herrors"
)

// Plugin is one named, dependency-aware unit a Registry tracks: a
// storage adapter, a serializer, a transport, or any other component
// the builder wires in by name. Impl is opaque to the registry; only
// Name and DependsOn matter for validation and ordering.
type Plugin struct {
	Name      string
	Impl      any
	DependsOn []string
}

// Registry rejects duplicate plugin names and resolves a dependency
// order via topological sort, rejecting cycles and references to
// missing dependencies.
type Registry struct {
	plugins map[string]Plugin
	order   []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register validates and adds p. Name must be non-empty and unique;
// Impl must be non-nil.
func (r *Registry) Register(p Plugin) error {
	if p.Name == "" {
		return herrors.New(herrors.CodeInvalid, "builder: plugin name must not be empty")
	}
	if p.Impl == nil {
		return herrors.New(herrors.CodeInvalid, fmt.Sprintf("builder: plugin %q: implementation must not be nil", p.Name))
	}
	if _, exists := r.plugins[p.Name]; exists {
		return herrors.New(herrors.CodeInvalid, fmt.Sprintf("builder: duplicate plugin name %q", p.Name))
	}
	r.plugins[p.Name] = p
	r.order = nil
	return nil
}

// Get returns the registered plugin implementation by name.
func (r *Registry) Get(name string) (any, bool) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, false
	}
	return p.Impl, true
}

// Resolve returns plugin names in dependency order (a dependency always
// precedes its dependents), rejecting missing dependencies and cycles.
// The result is deterministic: among plugins with no relative ordering
// constraint, names are visited in sorted order.
func (r *Registry) Resolve() ([]string, error) {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, p := range r.plugins {
		for _, dep := range p.DependsOn {
			if _, ok := r.plugins[dep]; !ok {
				return nil, herrors.New(herrors.CodeInvalid, fmt.Sprintf("builder: plugin %q depends on missing plugin %q", p.Name, dep))
			}
		}
	}

	const (
		visiting = 1
		visited  = 2
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return herrors.New(herrors.CodeInvalid, fmt.Sprintf("builder: dependency cycle detected: %s", cyclePath(append(path, name))))
		}
		state[name] = visiting
		for _, dep := range r.plugins[name].DependsOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	r.order = order
	return order, nil
}

func cyclePath(path []string) string {
	s := ""
	for i, n := range path {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}
