package audio

import (
	"fmt"
	"sync"

	"github.com/ekisa-team/flamingo/internal/audio/mel"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// WindowSamples is the fixed number of samples fed to the spectrogram.
const WindowSamples = avsr.SampleRate * avsr.ChunkSeconds

// Pipeline converts waveforms to batched log-mel tensors. Filterbanks are
// built once per bin count and shared.
type Pipeline struct {
	mu         sync.Mutex
	extractors map[int]*mel.Extractor
}

// NewPipeline creates an audio feature pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{extractors: make(map[int]*mel.Extractor)}
}

// Extract normalizes w, pads or trims it to 30 seconds and returns a
// (1, nMels, 3000) spectrogram.
func (p *Pipeline) Extract(w Waveform, nMels int) (*tensor.Tensor, error) {
	if w.SampleRate != avsr.SampleRate {
		return nil, fmt.Errorf("%w: sample rate must be %d Hz, got %d", avsr.ErrInvalidInput, avsr.SampleRate, w.SampleRate)
	}
	if nMels <= 0 {
		return nil, fmt.Errorf("%w: invalid mel bin count %d", avsr.ErrConfiguration, nMels)
	}

	samples := PadOrTrim(w.Normalize(), WindowSamples)
	spec := p.extractor(nMels).Extract(samples)

	return spec.Unsqueeze(0), nil
}

// Frames returns the fixed number of spectrogram frames per request.
func (p *Pipeline) Frames(nMels int) int {
	return p.extractor(nMels).Frames(WindowSamples)
}

// Silence returns a zero-filled spectrogram of the request shape.
func (p *Pipeline) Silence(nMels int) *tensor.Tensor {
	return tensor.New(1, nMels, p.Frames(nMels))
}

func (p *Pipeline) extractor(nMels int) *mel.Extractor {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.extractors[nMels]
	if !ok {
		e = mel.New(mel.DefaultConfig(nMels))
		p.extractors[nMels] = e
	}
	return e
}
