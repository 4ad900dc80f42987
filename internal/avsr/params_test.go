package avsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]byte(`{"language":"es","noise_snr":"0","modalities":"asr","beam_size":5,"fp16":1,"noise_fn":"noise/test.tsv"}`))
	require.NoError(t, err)

	assert.Equal(t, Params{
		Language:      "es",
		NoiseSNR:      0,
		Task:          "transcribe",
		Modalities:    "asr",
		BeamSize:      5,
		FP16:          true,
		NoiseManifest: "noise/test.tsv",
	}, p)
}

func TestParseParams_Defaults(t *testing.T) {
	for _, raw := range []string{"", "  ", "{}"} {
		p, err := ParseParams([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, DefaultParams(), p)
	}
}

func TestParseParams_Invalid(t *testing.T) {
	_, err := ParseParams([]byte(`{"language":`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseParams([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrValidation)
}
