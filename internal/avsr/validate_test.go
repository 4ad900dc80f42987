package avsr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Modalities(t *testing.T) {
	tests := []struct {
		name     string
		modality Modality
		audio    bool
		video    bool
		missing  string
	}{
		{"avsr both", AudioVisual, true, true, ""},
		{"avsr no video", AudioVisual, true, false, "video"},
		{"avsr no audio", AudioVisual, false, true, "audio"},
		{"asr audio", AudioOnly, true, false, ""},
		{"asr no audio", AudioOnly, false, true, "audio"},
		{"vsr video", VideoOnly, false, true, ""},
		{"vsr no video", VideoOnly, true, false, "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.modality, tt.audio, tt.video)
			if tt.missing == "" {
				assert.NoError(t, err)
				return
			}

			var missing *MissingModalityInputError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.missing, missing.Input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidate_UnknownModality(t *testing.T) {
	err := Validate(Modality("lip"), true, true)
	assert.ErrorIs(t, err, ErrUnsupportedModality)
}

func TestParseModality(t *testing.T) {
	m, err := ParseModality(" ASR ")
	require.NoError(t, err)
	assert.Equal(t, AudioOnly, m)
	assert.False(t, m.UsesVideo())

	_, err = ParseModality("multimodal")
	var unsupported *UnsupportedModalityError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "multimodal", unsupported.Modality)
}

func TestParseTask(t *testing.T) {
	for in, want := range map[string]Task{
		"":           TaskTranscribe,
		"transcribe": TaskTranscribe,
		"En-X":       TaskTranscribe,
		"translate":  TaskTranslate,
		"X-En":       TaskTranslate,
	} {
		got, err := ParseTask(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTask("summarize")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLanguages(t *testing.T) {
	langs := NewLanguages(nil)

	assert.NoError(t, langs.Validate("en"))
	assert.NoError(t, langs.Validate("lrs2"))
	assert.NoError(t, langs.Validate(AutoLanguage))

	err := langs.Validate("xx")
	var unsupported *UnsupportedLanguageError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xx", unsupported.Language)
	assert.Contains(t, unsupported.Supported, "fr")
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, "en", DecodeLanguage("lrs2"))
	assert.Equal(t, "", DecodeLanguage(AutoLanguage))
	assert.Equal(t, "de", DecodeLanguage("de"))
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(NewLanguages(nil), DeviceCUDA)

	req := &Request{
		Audio: []byte{1, 2},
		Params: Params{
			Language:   "lrs2",
			NoiseSNR:   1000,
			Task:       "X-En",
			Modalities: "asr",
			BeamSize:   4,
			FP16:       true,
		},
	}

	got, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, AudioOnly, got.Modality)
	assert.Equal(t, DecodingOptions{
		Task:              TaskTranslate,
		Language:          "en",
		FP16:              true,
		WithoutTimestamps: true,
		BeamSize:          4,
	}, got.Options)
	assert.False(t, got.Options.Greedy())
}

func TestValidator_HalfPrecisionOnlyOnCUDA(t *testing.T) {
	req := &Request{Audio: []byte{1}, Params: Params{Language: "en", Task: "transcribe", Modalities: "asr", BeamSize: 1, FP16: true}}

	for device, want := range map[string]bool{"cuda": true, "cpu": false, "": false} {
		got, err := NewValidator(NewLanguages(nil), device).Validate(req)
		require.NoError(t, err)
		assert.Equal(t, want, got.Options.FP16, device)
	}
}

func TestValidator_RejectsBeforeInputs(t *testing.T) {
	v := NewValidator(NewLanguages(nil), "cpu")

	_, err := v.Validate(&Request{Params: Params{Language: "xx", Modalities: "avsr", BeamSize: 1}})
	var lang *UnsupportedLanguageError
	assert.ErrorAs(t, err, &lang)

	_, err = v.Validate(&Request{Audio: []byte{1}, Params: Params{Language: "en", Modalities: "asr", BeamSize: 0}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = v.Validate(&Request{Audio: []byte{1}, Params: Params{Language: "en", Modalities: "avsr", BeamSize: 1}})
	var missing *MissingModalityInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "video", missing.Input)

	assert.True(t, IsClientError(err))
	assert.False(t, IsClientError(ErrResource))
}
