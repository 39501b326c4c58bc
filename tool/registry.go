package tool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/reviewswarm/core"
)

// ErrRegistryFrozen is returned when registering into a frozen registry.
var ErrRegistryFrozen = errors.New("tool registry is frozen")

// Resolver looks up a capability by name.
type Resolver interface {
	Resolve(name string) (Tool, error)
}

// Registry is the capability registry of a run. It is populated during setup,
// frozen, and from then on only read. Lookups are exact and side-effect free.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	frozen bool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools. Names must be non-empty and unique.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	for _, t := range tools {
		if t == nil {
			return fmt.Errorf("nil tool")
		}
		name := t.Name()
		if name == "" {
			return fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}

	return nil
}

// Freeze prevents further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve returns the tool registered under name or an error wrapping
// core.ErrUnknownTool.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Subset returns a frozen registry restricted to the named tools. Names that
// are not registered are skipped; calls to them resolve to ErrUnknownTool.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := &Registry{tools: make(map[string]Tool, len(names)), frozen: true}
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		if _, dup := sub.tools[n]; dup {
			continue
		}
		sub.tools[n] = t
		sub.order = append(sub.order, n)
	}
	return sub
}

// Missing returns the names not present in the registry, preserving order.
func (r *Registry) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !r.Has(n) {
			out = append(out, n)
		}
	}
	return out
}
