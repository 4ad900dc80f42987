// Package video turns a video file into the lip-region frame tensor consumed
// by the visual encoder.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// Extractor decodes a video into a (frames, height, width, channels) tensor.
// With train unset, eval-mode preprocessing (center crop, no augmentation) is used.
type Extractor interface {
	Extract(ctx context.Context, path string, train bool) (*tensor.Tensor, error)
}

// Pipeline prepares video features for decoding.
type Pipeline struct {
	extractor Extractor
}

// NewPipeline creates a pipeline backed by extractor.
func NewPipeline(extractor Extractor) *Pipeline {
	return &Pipeline{extractor: extractor}
}

// Extract returns a (1, channels, frames, height, width) tensor for the video at path.
func (p *Pipeline) Extract(ctx context.Context, path string) (*tensor.Tensor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: video %s: %v", avsr.ErrResource, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: video %s is a directory", avsr.ErrResource, path)
	}

	frames, err := p.extractor.Extract(ctx, path, false)
	if err != nil {
		if errors.Is(err, avsr.ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: video %s: %v", avsr.ErrResource, path, err)
	}

	if err := frames.Validate(); err != nil {
		return nil, fmt.Errorf("%w: video %s: %v", avsr.ErrResource, path, err)
	}
	if frames.Rank() != 4 {
		return nil, fmt.Errorf("%w: video %s: extractor returned shape %v, want (frames, height, width, channels)", avsr.ErrResource, path, frames.Shape)
	}
	if frames.Shape[0] == 0 {
		return nil, fmt.Errorf("%w: video %s has no frames", avsr.ErrInvalidInput, path)
	}

	return frames.Unsqueeze(0).Permute(0, 4, 1, 2, 3)
}

// Frames returns the frame count of a tensor produced by Extract.
func Frames(t *tensor.Tensor) int {
	if t == nil || t.Rank() != 5 {
		return 0
	}
	return t.Shape[2]
}
