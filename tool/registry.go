package tool

import (
	"fmt"
	"sort"
	"sync"
)

// DomainScope is an explicit allow-list of tool domains. An empty scope
// admits every domain; a non-empty scope admits only listed domains plus
// untagged tools.
type DomainScope []string

// Allows reports whether the scope admits the given domain.
func (s DomainScope) Allows(domain string) bool {
	if len(s) == 0 || domain == "" {
		return true
	}
	for _, d := range s {
		if d == domain {
			return true
		}
	}
	return false
}

// Registry is a thread-safe collection of tools keyed by name, recording the
// domain of each tool for route scoping.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	domains map[string]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}, domains: map[string]string{}}
}

// Register adds a tool, rejecting duplicate names.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool without name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	if d, ok := t.(Domainer); ok {
		r.domains[t.Name()] = d.Domain()
	}
	return nil
}

// MustRegister is Register panicking on error; intended for static configuration.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the named tool and its existence flag.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Domain returns the recorded domain for a tool ("" when untagged).
func (r *Registry) Domain(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domains[name]
}

// Names returns all registered tool names sorted for determinism.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameSet returns registered names as a set, for config-time validation.
func (r *Registry) NameSet() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool, len(r.tools))
	for name := range r.tools {
		set[name] = true
	}
	return set
}

// Resolve filters the requested names down to registered tools, preserving
// request order and dropping names excluded by the domain scope.
func (r *Registry) Resolve(names []string, scope DomainScope) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		if !scope.Allows(r.domains[name]) {
			continue
		}
		out = append(out, t)
	}
	return out
}
