// Package mock provides a deterministic in-process transcription model for
// development and tests.
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// DefaultTranscript is returned by every decode unless overridden.
const DefaultTranscript = "hello world"

// Loader builds mock models.
type Loader struct {
	transcript string
	loads      atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithTranscript sets the text every decode returns.
func WithTranscript(text string) Option {
	return func(l *Loader) { l.transcript = text }
}

// NewLoader creates a mock loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{transcript: DefaultTranscript}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Provider() backend.Provider {
	return backend.ProviderMock
}

// Loads returns how many models were built.
func (l *Loader) Loads() int {
	return int(l.loads.Load())
}

func (l *Loader) Load(ctx context.Context, spec backend.LoadSpec) (backend.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.loads.Add(1)

	contract := backend.Contract{
		Variant:      spec.Variant,
		NumMels:      spec.NumMels(),
		Multilingual: spec.Multilingual(),
		RequiresMel:  true,
		VideoEnabled: spec.VideoEnabled(),
	}

	return &Model{
		contract:   contract,
		transcript: l.transcript,
		params:     Shapes(spec),
		state:      make(map[string]*tensor.Tensor),
	}, nil
}

func (l *Loader) Close() error {
	return nil
}

// Shapes returns the parameter layout of a mock model built from spec.
func Shapes(spec backend.LoadSpec) map[string][]int {
	const width = 8

	shapes := map[string][]int{
		"encoder.conv1.weight":           {width, spec.NumMels(), 3},
		"encoder.ln_post.weight":         {width},
		"decoder.token_embedding.weight": {32, width},
		"decoder.ln.weight":              {width},
	}
	if spec.VideoEnabled() {
		shapes["video.projection.weight"] = []int{width, 16}
	}
	if spec.GatedCrossAttention() {
		shapes["decoder.blocks.0.gated_x_attn.weight"] = []int{width, width}
	}
	return shapes
}

// Model is a deterministic transcription model.
type Model struct {
	contract   backend.Contract
	transcript string
	params     map[string][]int

	mu      sync.RWMutex
	state   map[string]*tensor.Tensor
	closed  bool
	decodes atomic.Int64
}

func (m *Model) Contract() backend.Contract {
	return m.contract
}

func (m *Model) Parameters(ctx context.Context) (map[string][]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, backend.ErrModelClosed
	}
	return maps.Clone(m.params), nil
}

func (m *Model) LoadStateDict(ctx context.Context, state map[string]*tensor.Tensor, strict bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return backend.ErrModelClosed
	}

	if strict {
		if len(state) != len(m.params) {
			return fmt.Errorf("%w: got %d parameters, want %d", backend.ErrStrictLoad, len(state), len(m.params))
		}
		for name := range state {
			if _, ok := m.params[name]; !ok {
				return fmt.Errorf("%w: unexpected key %q", backend.ErrStrictLoad, name)
			}
		}
	}

	for name, t := range state {
		shape, ok := m.params[name]
		if !ok {
			continue
		}
		if !slices.Equal(shape, t.Shape) {
			return fmt.Errorf("%w: %s has shape %v, want %v", backend.ErrStrictLoad, name, t.Shape, shape)
		}
		m.state[name] = t
	}

	return nil
}

// Loaded returns the names of parameters that received values.
func (m *Model) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.state))
}

// Decodes returns how many decode calls the model served.
func (m *Model) Decodes() int {
	return int(m.decodes.Load())
}

func (m *Model) Decode(ctx context.Context, req *backend.DecodeRequest) ([]backend.Hypothesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, backend.ErrModelClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.check(req); err != nil {
		return nil, err
	}
	m.decodes.Add(1)

	lang := req.Options.Language
	if lang == "" {
		lang = "en"
	}

	beams := max(req.Options.BeamSize, 1)
	hyps := make([]backend.Hypothesis, 0, beams)
	for i := 0; i < beams; i++ {
		hyps = append(hyps, backend.Hypothesis{
			Text:       " " + m.transcript,
			Language:   lang,
			AvgLogProb: -0.1 * float64(i+1),
		})
	}
	return hyps, nil
}

func (m *Model) check(req *backend.DecodeRequest) error {
	if req.Flags.AudioOnly && req.Flags.VideoOnly {
		return fmt.Errorf("mock: audio-only and video-only are exclusive")
	}

	if req.Mel != nil {
		if want := []int{1, m.contract.NumMels, 3000}; !slices.Equal(req.Mel.Shape, want) {
			return fmt.Errorf("mock: mel shape %v, want %v", req.Mel.Shape, want)
		}
	} else if !req.Flags.VideoOnly || m.contract.RequiresMel {
		return fmt.Errorf("mock: mel is required")
	}

	if req.Flags.AudioOnly {
		return nil
	}
	if !m.contract.VideoEnabled {
		return fmt.Errorf("mock: model was built without a video encoder")
	}
	if req.Video == nil {
		return fmt.Errorf("mock: video is required")
	}
	if req.Video.Rank() != 5 || req.Video.Shape[0] != 1 {
		return fmt.Errorf("mock: video shape %v, want (1, C, T, H, W)", req.Video.Shape)
	}
	return nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
