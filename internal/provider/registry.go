package provider

import (
	"fmt"
	"strings"
	"sync"

	"trading-data-pipeline/internal/interfaces"
)

// Registry is the ordered collection of registered providers. Names are
// case-insensitive; the order is the configured priority list filtered to
// names actually registered, recomputed whenever the provider set changes.
type Registry struct {
	mu             sync.RWMutex
	providers      map[string]interfaces.DataProvider
	configPriority []string
	order          []string
}

func NewRegistry(priority []string) *Registry {
	norm := make([]string, 0, len(priority))
	for _, n := range priority {
		norm = append(norm, strings.ToLower(n))
	}
	return &Registry{
		providers:      make(map[string]interfaces.DataProvider),
		configPriority: norm,
	}
}

// Register adds a provider under its lower-cased name.
func (r *Registry) Register(p interfaces.DataProvider) error {
	name := strings.ToLower(p.Name())
	if name == "" {
		return fmt.Errorf("provider has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.providers[name] = p
	r.recomputeOrder()
	return nil
}

// recomputeOrder filters the configured priority list to registered names,
// then appends registered providers missing from the configuration so every
// provider is reachable by the cascade. Caller holds the lock.
func (r *Registry) recomputeOrder() {
	order := make([]string, 0, len(r.providers))
	seen := make(map[string]bool, len(r.providers))
	for _, name := range r.configPriority {
		if _, ok := r.providers[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	for name := range r.providers {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	r.order = order
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (interfaces.DataProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Order returns a copy of the current priority order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns all registered names in priority order.
func (r *Registry) Names() []string { return r.Order() }

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Each calls fn for every registered provider in priority order.
func (r *Registry) Each(fn func(name string, p interfaces.DataProvider)) {
	for _, name := range r.Order() {
		if p, ok := r.Get(name); ok {
			fn(name, p)
		}
	}
}
