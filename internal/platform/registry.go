package platform

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Provider for a set of upstream credentials.
type Factory func(creds Credentials) (Provider, error)

// Registry holds the known platform factories keyed by name. It is assembled
// once at startup and read-only afterwards, but guarded anyway because tests
// register ad hoc.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given platform name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds a provider for the named platform.
func (r *Registry) New(name string, creds Credentials) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platform: unsupported platform %q (supported: %v)", name, r.Names())
	}
	return f(creds)
}

// Supported reports whether the named platform is registered.
func (r *Registry) Supported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
