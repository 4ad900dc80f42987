// Package mel computes the log-mel spectrogram consumed by the transcription
// model's audio encoder.
//
// Parameters follow the model's training front end:
//
//	SampleRate: 16000
//	NFFT:       400 (25 ms, periodic Hann window)
//	HopLength:  160 (10 ms)
//	NumMels:    80, or 128 for large-v3
//
// Frames come from a centred, reflect-padded STFT with the last frame dropped,
// so N samples yield N/HopLength frames. Values are log10 power clamped to an
// 8 decade dynamic range below the maximum, then scaled with (x+4)/4.
package mel

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/ekisa-team/flamingo/internal/tensor"
)

const (
	// DefaultBins is the mel bin count of every variant except large-v3.
	DefaultBins = 80

	// LargeV3Bins is the mel bin count of the large-v3 variant.
	LargeV3Bins = 128
)

// BinsForVariant returns the mel bin count expected by a model variant.
func BinsForVariant(variant string) int {
	if strings.EqualFold(strings.TrimSpace(variant), "large-v3") {
		return LargeV3Bins
	}
	return DefaultBins
}

// Config controls spectrogram extraction.
type Config struct {
	SampleRate int
	NFFT       int
	HopLength  int
	NumMels    int
}

// DefaultConfig returns the model front-end config for numMels bins.
func DefaultConfig(numMels int) Config {
	return Config{
		SampleRate: 16000,
		NFFT:       400,
		HopLength:  160,
		NumMels:    numMels,
	}
}

// Extractor computes log-mel spectrograms. It is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	filters []filter
}

// New creates an Extractor, precomputing the window and filterbank.
func New(cfg Config) *Extractor {
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.NFFT),
		filters: slaneyFilterBank(cfg.NumMels, cfg.NFFT, cfg.SampleRate),
	}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Frames returns the number of frames produced for n samples.
func (e *Extractor) Frames(n int) int {
	return n / e.cfg.HopLength
}

// Extract computes a (NumMels, Frames(len(samples))) spectrogram from samples
// normalized to [-1, 1].
func (e *Extractor) Extract(samples []float32) *tensor.Tensor {
	cfg := e.cfg
	frames := e.Frames(len(samples))
	out := tensor.New(cfg.NumMels, frames)
	if frames == 0 {
		return out
	}

	padded := reflectPad(samples, cfg.NFFT/2)
	fft := fourier.NewFFT(cfg.NFFT)
	frame := make([]float64, cfg.NFFT)
	coeffs := make([]complex128, cfg.NFFT/2+1)
	power := make([]float64, cfg.NFFT/2+1)

	maxVal := math.Inf(-1)
	for t := 0; t < frames; t++ {
		start := t * cfg.HopLength
		for i := range frame {
			frame[i] = padded[start+i] * e.window[i]
		}

		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		for m, f := range e.filters {
			sum := 0.0
			for k, w := range f.weights {
				sum += w * power[f.start+k]
			}
			v := math.Log10(math.Max(sum, 1e-10))
			if v > maxVal {
				maxVal = v
			}
			out.Data[m*frames+t] = float32(v)
		}
	}

	floor := float32(maxVal - 8.0)
	for i, v := range out.Data {
		if v < floor {
			v = floor
		}
		out.Data[i] = (v + 4) / 4
	}

	return out
}

// reflectPad pads x by pad samples on each side, mirroring around the edges
// without repeating the edge sample.
func reflectPad(x []float32, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	for i := range out {
		out[i] = float64(x[reflectIndex(i-pad, n)])
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// hannWindow returns a periodic Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
