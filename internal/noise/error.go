package noise

import (
	"fmt"

	"github.com/ekisa-team/flamingo/internal/avsr"
)

// Error definitions for noise augmentation.
var (
	ErrManifestNotFound = fmt.Errorf("%w: noise manifest not found", avsr.ErrConfiguration)
	ErrManifestEmpty    = fmt.Errorf("%w: noise manifest is empty", avsr.ErrConfiguration)
	ErrNoiseUnreadable  = fmt.Errorf("%w: noise file unreadable", avsr.ErrResource)
)
