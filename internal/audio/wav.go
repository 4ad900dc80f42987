package audio

import (
	"bytes"
	"fmt"

	"github.com/ekisa-team/flamingo/internal/avsr"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Error definitions for WAV decoding.
var (
	ErrNotWAV         = fmt.Errorf("%w: not a PCM WAV file", avsr.ErrInvalidInput)
	ErrUnsupportedWAV = fmt.Errorf("%w: unsupported WAV layout", avsr.ErrInvalidInput)
	ErrNoSamples      = fmt.Errorf("%w: WAV has no sample data", avsr.ErrInvalidInput)
)

// DecodeWAV decodes a mono 16-bit PCM WAV file held in memory.
func DecodeWAV(data []byte) (Waveform, error) {
	buf, err := decodePCM(data)
	if err != nil {
		return Waveform{}, err
	}

	if buf.Format.NumChannels != 1 {
		return Waveform{}, fmt.Errorf("%w: %d channels, want mono", ErrUnsupportedWAV, buf.Format.NumChannels)
	}
	if buf.SourceBitDepth != 16 {
		return Waveform{}, fmt.Errorf("%w: %d-bit samples, want 16-bit", ErrUnsupportedWAV, buf.SourceBitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	return Waveform{SampleRate: buf.Format.SampleRate, Samples: samples}, nil
}

// DecodeWAVMono decodes any PCM WAV file, averaging channels to mono and
// rescaling samples to 16-bit.
func DecodeWAVMono(data []byte) (Waveform, error) {
	buf, err := decodePCM(data)
	if err != nil {
		return Waveform{}, err
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return Waveform{}, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
	}

	shift := buf.SourceBitDepth - 16
	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[f*channels+c]
		}
		v := sum / channels
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		samples[f] = clip16(v)
	}

	return Waveform{SampleRate: buf.Format.SampleRate, Samples: samples}, nil
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodePCM(data []byte) (*goaudio.IntBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: audio format %d, want PCM", ErrUnsupportedWAV, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM: %v", avsr.ErrInvalidInput, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, ErrNoSamples
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}

	return buf, nil
}

func clip16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
