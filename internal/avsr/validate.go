package avsr

import "fmt"

// Validate checks that the inputs required by the modality are present.
func Validate(modality Modality, hasAudio, hasVideo bool) error {
	switch modality {
	case AudioVisual:
		if !hasVideo {
			return &MissingModalityInputError{Modality: modality, Input: "video"}
		}
		if !hasAudio {
			return &MissingModalityInputError{Modality: modality, Input: "audio"}
		}
	case AudioOnly:
		if !hasAudio {
			return &MissingModalityInputError{Modality: modality, Input: "audio"}
		}
	case VideoOnly:
		if !hasVideo {
			return &MissingModalityInputError{Modality: modality, Input: "video"}
		}
	default:
		return &UnsupportedModalityError{Modality: string(modality)}
	}

	return nil
}

// Validated is a request whose parameters passed every precondition.
type Validated struct {
	Modality Modality
	Task     Task
	Options  DecodingOptions
}

// DeviceCUDA is the only device on which half precision takes effect.
const DeviceCUDA = "cuda"

// Validator enforces request preconditions before any heavy work begins.
type Validator struct {
	Languages Languages

	// Device is the configured model device. Requested fp16 is dropped
	// unless it is DeviceCUDA.
	Device string
}

// NewValidator creates a validator for the given language set and device.
func NewValidator(languages Languages, device string) *Validator {
	return &Validator{Languages: languages, Device: device}
}

// Validate checks modality, language, task and beam size, then the inputs.
func (v *Validator) Validate(req *Request) (*Validated, error) {
	modality, err := ParseModality(req.Params.Modalities)
	if err != nil {
		return nil, err
	}

	if err := v.Languages.Validate(req.Params.Language); err != nil {
		return nil, err
	}

	task, err := ParseTask(req.Params.Task)
	if err != nil {
		return nil, err
	}

	if req.Params.BeamSize < 1 {
		return nil, fmt.Errorf("%w: beam_size must be >= 1, got %d", ErrValidation, req.Params.BeamSize)
	}

	if err := Validate(modality, req.HasAudio(), req.HasVideo()); err != nil {
		return nil, err
	}

	return &Validated{
		Modality: modality,
		Task:     task,
		Options: DecodingOptions{
			Task:              task,
			Language:          DecodeLanguage(req.Params.Language),
			FP16:              req.Params.FP16 && v.Device == DeviceCUDA,
			WithoutTimestamps: true,
			BeamSize:          req.Params.BeamSize,
		},
	}, nil
}
