package model

import (
	"slices"
	"strings"
	"sync"
)

// Registry stores model states.
type Registry struct {
	states map[Key]*State
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[Key]*State),
	}
}

// Set adds a state to the registry.
func (r *Registry) Set(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.Key()] = state
}

// Get returns the state with the given key.
func (r *Registry) Get(key Key) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[key]
	return state, ok
}

// List returns all states ordered by key.
func (r *Registry) List() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*State, 0, len(r.states))
	for _, state := range r.states {
		states = append(states, state)
	}
	slices.SortFunc(states, func(a, b *State) int {
		return strings.Compare(a.Key().String(), b.Key().String())
	})

	return states
}

// Len returns the number of states.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.states)
}

// Delete deletes the state with the given key.
func (r *Registry) Delete(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, key)
}
