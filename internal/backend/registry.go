package backend

import (
	"fmt"
	"sync"
)

// Registry manages model loaders.
type Registry struct {
	loaders map[Provider]Loader
	mu      sync.RWMutex
}

// NewRegistry creates a new loader registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[Provider]Loader),
	}
}

// Register adds a loader to the registry.
func (r *Registry) Register(l Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaders[l.Provider()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, l.Provider())
	}
	r.loaders[l.Provider()] = l
	return nil
}

// Get retrieves a loader by provider.
func (r *Registry) Get(p Provider) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loaders[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return l, nil
}

// Providers lists registered providers.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.loaders))
	for p := range r.loaders {
		out = append(out, p)
	}
	return out
}

// Close closes all registered loaders.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.loaders {
		if err := l.Close(); err != nil {
			return err
		}
	}

	return nil
}
