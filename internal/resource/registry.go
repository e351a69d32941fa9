package resource

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh definition.
type Factory func() *Definition

// Registry maps resource keys to factories. Every Resolve builds a new
// definition, so fields and their evaluation state never cross requests.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	perPage   int
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// SetDefaultPerPage sets the page size given to definitions that declare
// none.
func (r *Registry) SetDefaultPerPage(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perPage = n
}

// Register adds or replaces the factory for key.
func (r *Registry) Register(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Resolve builds the definition registered under key.
func (r *Registry) Resolve(key string) (*Definition, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	perPage := r.perPage
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrResourceNotFound, key)
	}
	def := f()
	if def == nil {
		return nil, fmt.Errorf("%w: %q built nothing", ErrResourceNotFound, key)
	}
	if def.Key == "" {
		def.Key = key
	}
	if def.PerPage <= 0 && perPage > 0 {
		def.PerPage = perPage
	}
	return def.Finalize(), nil
}

// Keys lists registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Replace swaps every factory for the ones registered in from.
func (r *Registry) Replace(from *Registry) {
	from.mu.RLock()
	next := make(map[string]Factory, len(from.factories))
	for k, f := range from.factories {
		next[k] = f
	}
	from.mu.RUnlock()

	r.mu.Lock()
	r.factories = next
	r.mu.Unlock()
}

// Lint resolves every resource and collects its issues. Relational fields
// are checked against the registered keys.
func (r *Registry) Lint() []Issue {
	keys := r.Keys()
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	var out []Issue
	for _, k := range keys {
		def, err := r.Resolve(k)
		if err != nil {
			continue
		}
		out = append(out, def.Lint(func(key string) bool { return known[key] })...)
	}
	return out
}
