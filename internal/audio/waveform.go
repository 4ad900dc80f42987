// Package audio decodes PCM waveforms and turns them into the fixed-shape
// spectrogram tensor the transcription model consumes.
package audio

import (
	"slices"
	"time"
)

// FullScale is the int16 full-scale value used for normalization.
const FullScale = 32768.0

// Waveform is a mono sequence of signed 16-bit samples.
type Waveform struct {
	SampleRate int
	Samples    []int16
}

// Clone returns a deep copy of w.
func (w Waveform) Clone() Waveform {
	return Waveform{SampleRate: w.SampleRate, Samples: slices.Clone(w.Samples)}
}

// Duration returns the length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Normalize converts samples to floats in [-1, 1).
func (w Waveform) Normalize() []float32 {
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = float32(s) / FullScale
	}
	return out
}

// PadOrTrim returns exactly length samples, zero padding or truncating the tail.
func PadOrTrim(samples []float32, length int) []float32 {
	if len(samples) == length {
		return samples
	}
	out := make([]float32, length)
	copy(out, samples)
	return out
}

// Power returns the mean squared amplitude of samples.
func Power(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return sum / float64(len(samples))
}
