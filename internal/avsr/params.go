package avsr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekisa-team/flamingo/internal/mapsafe"
)

// ParseParams decodes a JSON parameter bundle. Missing fields take their
// defaults; numbers, booleans and numeric strings are accepted interchangeably.
func ParseParams(raw []byte) (Params, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return DefaultParams(), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Params{}, fmt.Errorf("%w: params: %v", ErrValidation, err)
	}
	return ParamsFromMap(m), nil
}

// ParamsFromMap builds Params from a loosely typed mapping.
func ParamsFromMap(m map[string]any) Params {
	d := DefaultParams()
	return Params{
		Language:       mapsafe.Get(m, "language", d.Language),
		NoiseSNR:       mapsafe.Get(m, "noise_snr", d.NoiseSNR),
		Task:           mapsafe.Get(m, "task", d.Task),
		Modalities:     mapsafe.Get(m, "modalities", d.Modalities),
		BeamSize:       mapsafe.Get(m, "beam_size", d.BeamSize),
		FP16:           mapsafe.Get(m, "fp16", d.FP16),
		CheckpointPath: mapsafe.Get(m, "checkpoint_path", d.CheckpointPath),
		NoiseManifest:  mapsafe.Get(m, "noise_fn", d.NoiseManifest),
	}
}
