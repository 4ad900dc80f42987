// Package audiotest builds WAV fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// WriteWAV encodes interleaved samples as a PCM WAV file at path.
func WriteWAV(tb testing.TB, path string, sampleRate, channels, bitDepth int, samples []int) {
	tb.Helper()

	f, err := os.Create(path)
	require.NoError(tb, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	require.NoError(tb, enc.Write(buf))
	require.NoError(tb, enc.Close())
}

// WAV returns the bytes of a PCM WAV file holding samples.
func WAV(tb testing.TB, sampleRate, channels, bitDepth int, samples []int) []byte {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fixture.wav")
	WriteWAV(tb, path, sampleRate, channels, bitDepth, samples)

	data, err := os.ReadFile(path)
	require.NoError(tb, err)
	return data
}

// Sine returns n mono samples of a sine wave at freq Hz with the given peak.
func Sine(n, sampleRate int, freq, peak float64) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(math.Round(peak * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))))
	}
	return out
}

// Constant returns n samples set to v.
func Constant(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
