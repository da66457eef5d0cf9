// Package registry maps platform identifiers to collectors.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// Errors returned by the registry.
var (
	ErrDuplicate = errors.New("collector already registered")
	ErrUnknown   = errors.New("unknown platform")
)

// Registry is a concurrency-safe collector catalog.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]extract.Collector
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{collectors: make(map[string]extract.Collector)}
}

// Register adds a collector under id.
func (r *Registry) Register(id string, c extract.Collector) error {
	if id == "" {
		return errors.New("collector id is required")
	}
	if c == nil {
		return fmt.Errorf("collector %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collectors[id]; ok {
		return fmt.Errorf("register %q: %w", id, ErrDuplicate)
	}
	r.collectors[id] = c
	return nil
}

// Lookup returns the collector registered under id.
func (r *Registry) Lookup(id string) (extract.Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[id]
	return c, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.collectors))
	for id := range r.collectors {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Validate returns ErrUnknown naming the first id with no collector.
func (r *Registry) Validate(ids []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if _, ok := r.collectors[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknown, id)
		}
	}
	return nil
}
