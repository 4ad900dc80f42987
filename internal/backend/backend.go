package backend

import (
	"context"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// Provider is a string identifier for a model backend provider.
type Provider string

const (
	ProviderGRPC Provider = "grpc"
	ProviderMock Provider = "mock"
)

// Model is a loaded audio-visual transcription model.
type Model interface {
	// Contract describes the inputs the model expects.
	Contract() Contract

	// Parameters returns the shape of every named parameter.
	Parameters(ctx context.Context) (map[string][]int, error)

	// LoadStateDict replaces parameter values. A strict load fails unless the
	// names and shapes match the model exactly.
	LoadStateDict(ctx context.Context, state map[string]*tensor.Tensor, strict bool) error

	// Decode runs beam or greedy search and returns hypotheses ordered best first.
	Decode(ctx context.Context, req *DecodeRequest) ([]Hypothesis, error)

	// Close releases the model.
	Close() error
}

// Loader builds models for a provider.
type Loader interface {
	// Provider returns the loader identifier.
	Provider() Provider

	// Load constructs a model from spec with freshly initialized weights.
	Load(ctx context.Context, spec LoadSpec) (Model, error)

	// Close cleans up resources.
	Close() error
}

// Contract describes a loaded model.
type Contract struct {
	Variant      string `json:"variant"       msgpack:"variant"`
	NumMels      int    `json:"num_mels"      msgpack:"num_mels"`
	Multilingual bool   `json:"multilingual"  msgpack:"multilingual"`

	// RequiresMel is set when video-only decoding still needs a mel tensor.
	RequiresMel bool `json:"requires_mel" msgpack:"requires_mel"`

	VideoEnabled bool `json:"video_enabled" msgpack:"video_enabled"`
}

// ModalityFlags selects which encoder streams a decode uses.
type ModalityFlags struct {
	AudioOnly bool `msgpack:"test_a"`
	VideoOnly bool `msgpack:"test_v"`
}

// DecodeRequest is the input of a single decode call.
type DecodeRequest struct {
	Mel     *tensor.Tensor       `msgpack:"mel"`
	Video   *tensor.Tensor       `msgpack:"video"`
	Options avsr.DecodingOptions `msgpack:"options"`
	Flags   ModalityFlags        `msgpack:"flags"`
}

// Hypothesis is a decoded transcript candidate.
type Hypothesis struct {
	Text          string  `msgpack:"text"`
	Language      string  `msgpack:"language"`
	AvgLogProb    float64 `msgpack:"avg_logprob"`
	NoSpeechProb  float64 `msgpack:"no_speech_prob"`
	Temperature   float64 `msgpack:"temperature"`
	CompressRatio float64 `msgpack:"compression_ratio"`
}
