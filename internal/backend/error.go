package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrNoHypothesis      = errors.New("model returned no hypotheses")
	ErrStrictLoad        = errors.New("state dict does not match model parameters")
	ErrModelClosed       = errors.New("model is closed")
)
