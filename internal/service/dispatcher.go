package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// SilenceFunc returns a zero-filled spectrogram with nMels bins.
type SilenceFunc func(nMels int) *tensor.Tensor

// Dispatcher routes a decode to the model according to the request modality.
type Dispatcher struct {
	silence SilenceFunc
}

// NewDispatcher creates a dispatcher. silence supplies the placeholder
// spectrogram for video-only decoding on models that require one.
func NewDispatcher(silence SilenceFunc) *Dispatcher {
	return &Dispatcher{silence: silence}
}

// Dispatch decodes and returns the trimmed text of the best hypothesis.
func (d *Dispatcher) Dispatch(ctx context.Context, m backend.Model, modality avsr.Modality, mel, video *tensor.Tensor, opts avsr.DecodingOptions) (string, error) {
	hyp, err := d.Decode(ctx, m, modality, mel, video, opts)
	if err != nil {
		return "", err
	}
	return hyp.Text, nil
}

// Decode is Dispatch returning the whole best hypothesis with its text trimmed.
func (d *Dispatcher) Decode(ctx context.Context, m backend.Model, modality avsr.Modality, mel, video *tensor.Tensor, opts avsr.DecodingOptions) (backend.Hypothesis, error) {
	req := &backend.DecodeRequest{Options: opts}

	switch modality {
	case avsr.AudioVisual:
		if mel == nil || video == nil {
			return backend.Hypothesis{}, fmt.Errorf("%w: avsr decoding needs audio and video features", avsr.ErrInvalidInput)
		}
		req.Mel, req.Video = mel, video
	case avsr.AudioOnly:
		if mel == nil {
			return backend.Hypothesis{}, fmt.Errorf("%w: asr decoding needs audio features", avsr.ErrInvalidInput)
		}
		req.Mel = mel
		req.Flags.AudioOnly = true
	case avsr.VideoOnly:
		if video == nil {
			return backend.Hypothesis{}, fmt.Errorf("%w: vsr decoding needs video features", avsr.ErrInvalidInput)
		}
		if c := m.Contract(); c.RequiresMel {
			req.Mel = d.silence(c.NumMels)
		}
		req.Video = video
		req.Flags.VideoOnly = true
	default:
		return backend.Hypothesis{}, &avsr.UnsupportedModalityError{Modality: string(modality)}
	}

	hyps, err := m.Decode(ctx, req)
	if err != nil {
		return backend.Hypothesis{}, err
	}
	if len(hyps) == 0 {
		return backend.Hypothesis{}, backend.ErrNoHypothesis
	}

	best := hyps[0]
	best.Text = strings.TrimSpace(best.Text)
	return best, nil
}
