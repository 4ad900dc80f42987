// Package avsr holds the request, option and result types shared by the
// audio-visual speech recognition pipeline, and the request validator.
package avsr

import (
	"fmt"
	"strings"
)

// SampleRate is the only accepted audio sample rate in Hz.
const SampleRate = 16000

// ChunkSeconds is the fixed decoding window in seconds.
const ChunkSeconds = 30

// Modality selects which input signals the model consumes.
type Modality string

const (
	// AudioVisual decodes audio and lip video together.
	AudioVisual Modality = "avsr"

	// AudioOnly decodes audio, video features are disabled.
	AudioOnly Modality = "asr"

	// VideoOnly decodes lip video, audio features are disabled.
	VideoOnly Modality = "vsr"
)

// ParseModality parses the modalities request field.
func ParseModality(s string) (Modality, error) {
	switch m := Modality(strings.ToLower(strings.TrimSpace(s))); m {
	case AudioVisual, AudioOnly, VideoOnly:
		return m, nil
	default:
		return "", &UnsupportedModalityError{Modality: s}
	}
}

// UsesAudio reports whether the modality consumes the audio signal.
func (m Modality) UsesAudio() bool {
	return m == AudioVisual || m == AudioOnly
}

// UsesVideo reports whether the modality consumes the video signal.
func (m Modality) UsesVideo() bool {
	return m == AudioVisual || m == VideoOnly
}

// Task is the decoding task.
type Task string

const (
	// TaskTranscribe outputs text in the spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate outputs text translated toward English.
	TaskTranslate Task = "translate"
)

// ParseTask parses the task request field. "X-En" translates into English,
// "En-X" keeps transcription semantics.
func ParseTask(s string) (Task, error) {
	switch strings.TrimSpace(s) {
	case "", "transcribe", "En-X":
		return TaskTranscribe, nil
	case "translate", "X-En":
		return TaskTranslate, nil
	default:
		return "", fmt.Errorf("%w: unsupported task %q", ErrValidation, s)
	}
}

// DecodingOptions are forwarded verbatim to the transcription model.
type DecodingOptions struct {
	Task              Task   `json:"task"               msgpack:"task"`
	Language          string `json:"language,omitempty" msgpack:"language"`
	FP16              bool   `json:"fp16"               msgpack:"fp16"`
	WithoutTimestamps bool   `json:"without_timestamps" msgpack:"without_timestamps"`
	BeamSize          int    `json:"beam_size"          msgpack:"beam_size"` // 1 is greedy
}

// Greedy reports whether the options request greedy decoding.
func (o DecodingOptions) Greedy() bool {
	return o.BeamSize <= 1
}

// Params is the parameter bundle of a transcription request.
type Params struct {
	Language       string `json:"language"`
	NoiseSNR       int    `json:"noise_snr"`
	Task           string `json:"task"`
	Modalities     string `json:"modalities"`
	BeamSize       int    `json:"beam_size"`
	FP16           bool   `json:"fp16"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
	NoiseManifest  string `json:"noise_fn,omitempty"`
}

// DefaultParams returns the parameters used for fields a request omits.
func DefaultParams() Params {
	return Params{
		Language:   "en",
		NoiseSNR:   1000,
		Task:       string(TaskTranscribe),
		Modalities: string(AudioVisual),
		BeamSize:   1,
	}
}

// Request is one transcription request. Audio holds WAV bytes, Video is a path
// to a video file owned by the caller.
type Request struct {
	ID     string
	Audio  []byte
	Video  string
	Params Params
}

// HasAudio reports whether audio bytes were supplied.
func (r *Request) HasAudio() bool {
	return len(r.Audio) > 0
}

// HasVideo reports whether a video file was supplied.
func (r *Request) HasVideo() bool {
	return r.Video != ""
}

// Result is the outcome of a transcription request.
type Result struct {
	Text     string         `json:"text"               msgpack:"text"`
	Language string         `json:"language"           msgpack:"language"`
	Metrics  map[string]any `json:"metrics,omitempty"  msgpack:"metrics"`
}
