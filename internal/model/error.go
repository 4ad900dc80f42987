package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotFound  = errors.New("model state not found in registry")
	ErrNotLoaded = errors.New("model state is not loaded")
	ErrEvicted   = errors.New("model state was evicted")
)
