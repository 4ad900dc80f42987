package checkpoint

import (
	"errors"
	"fmt"

	"github.com/ekisa-team/flamingo/internal/avsr"
)

// Error definitions for the checkpoint package.
var (
	ErrNotFound    = fmt.Errorf("%w: checkpoint not found", avsr.ErrCheckpoint)
	ErrCorrupt     = fmt.Errorf("%w: checkpoint is corrupt", avsr.ErrCheckpoint)
	ErrFormat      = fmt.Errorf("%w: unsupported checkpoint format", avsr.ErrCheckpoint)
	ErrNotExact    = errors.New("checkpoint does not exactly match model parameters")
	ErrEmptyRecord = fmt.Errorf("%w: checkpoint holds no tensors", avsr.ErrCheckpoint)
)
