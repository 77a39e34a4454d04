package providers

import (
	"errors"
	"sort"
	"sync"

	"github.com/mozaika228/hephaestus/config"
)

var (
	// ErrProviderNotFound is returned when no builder is registered for an ID
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Builder creates an adapter from a configuration snapshot
type Builder func(cfg config.ProvidersConfig) Provider

// Registry maps provider IDs to adapter builders. Adapters are built per
// request so credential changes apply without a restart.
type Registry struct {
	mu       sync.RWMutex
	builders map[ID]Builder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[ID]Builder),
	}
}

// Register adds a builder for id
func (r *Registry) Register(id ID, builder Builder) error {
	if builder == nil {
		return errors.New("builder cannot be nil")
	}
	if id == "" {
		return errors.New("provider id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[id]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.builders[id] = builder
	return nil
}

// Resolve builds the adapter for id against cfg
func (r *Registry) Resolve(id ID, cfg config.ProvidersConfig) (Provider, error) {
	r.mu.RLock()
	builder, exists := r.builders[id]
	r.mu.RUnlock()

	if !exists {
		return nil, ErrProviderNotFound
	}
	return builder(cfg), nil
}

// IDs returns the registered provider IDs in sorted order
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ID, 0, len(r.builders))
	for id := range r.builders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
