package backend

import (
	"strings"

	"github.com/ekisa-team/flamingo/internal/audio/mel"
	"github.com/ekisa-team/flamingo/internal/avsr"
)

// FusionSeparate routes video through gated cross-attention layers.
const FusionSeparate = "separate"

// DeviceCUDA is the only device on which half precision takes effect.
const DeviceCUDA = avsr.DeviceCUDA

// LoadSpec holds everything needed to construct a model.
type LoadSpec struct {
	Variant            string        `msgpack:"variant"`
	WhisperPath        string        `msgpack:"whisper_path"`
	AVHubertPath       string        `msgpack:"av_hubert_path"`
	AVHubertCheckpoint string        `msgpack:"av_hubert_ckpt"`
	AVHubertEncoder    bool          `msgpack:"av_hubert_encoder"`
	Fusion             string        `msgpack:"av_fusion"`
	Modality           avsr.Modality `msgpack:"modality"`
	Device             string        `msgpack:"device"`
	FP16               bool          `msgpack:"fp16"`
	Dropout            float64       `msgpack:"dropout_rate"`
}

// VideoEnabled reports whether the model is built with a video encoder.
func (s LoadSpec) VideoEnabled() bool {
	return s.Modality.UsesVideo()
}

// GatedCrossAttention reports whether gated cross-attention layers are added.
func (s LoadSpec) GatedCrossAttention() bool {
	return s.Fusion == FusionSeparate && s.VideoEnabled()
}

// HalfPrecision reports whether fp16 is actually used.
func (s LoadSpec) HalfPrecision() bool {
	return s.FP16 && s.Device == DeviceCUDA
}

// NumMels returns the spectrogram bin count the variant expects.
func (s LoadSpec) NumMels() int {
	return mel.BinsForVariant(s.Variant)
}

// Multilingual reports whether the variant uses the multilingual vocabulary.
func (s LoadSpec) Multilingual() bool {
	return IsMultilingual(s.Variant)
}

// IsMultilingual reports whether a model variant uses the multilingual vocabulary.
// English-only variants carry a ".en" suffix.
func IsMultilingual(variant string) bool {
	return strings.Contains(variant, "large") || !strings.HasSuffix(variant, ".en")
}
