package avsr

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error returned by the pipeline wraps exactly one of them.
var (
	// ErrValidation rejects a request before any model work.
	ErrValidation = errors.New("validation error")

	// ErrInvalidInput rejects a request after cheap input checks.
	ErrInvalidInput = errors.New("invalid input")

	// ErrResource reports an unreadable file or similar server-side failure.
	ErrResource = errors.New("resource error")

	// ErrConfiguration reports a missing or empty configured resource.
	ErrConfiguration = errors.New("configuration error")

	// ErrCheckpoint reports a missing or corrupt checkpoint.
	ErrCheckpoint = errors.New("checkpoint error")

	// ErrUnsupportedModality reports an unknown modalities value.
	ErrUnsupportedModality = errors.New("unsupported modality")
)

// MissingModalityInputError is returned when the declared modality needs an input
// file the request did not supply.
type MissingModalityInputError struct {
	Modality Modality
	Input    string // "audio" or "video"
}

func (e *MissingModalityInputError) Error() string {
	return fmt.Sprintf("%s file is required for modality %s", e.Input, e.Modality)
}

// Is makes MissingModalityInputError match ErrValidation.
func (e *MissingModalityInputError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedLanguageError is returned for language codes outside the supported set.
type UnsupportedLanguageError struct {
	Language  string
	Supported []string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q, supported: %s", e.Language, strings.Join(e.Supported, ", "))
}

// Is makes UnsupportedLanguageError match ErrValidation.
func (e *UnsupportedLanguageError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedModalityError is returned for modalities other than avsr, asr and vsr.
type UnsupportedModalityError struct {
	Modality string
}

func (e *UnsupportedModalityError) Error() string {
	return fmt.Sprintf("unsupported modality %q, expected one of avsr, asr, vsr", e.Modality)
}

// Is makes UnsupportedModalityError match ErrUnsupportedModality.
func (e *UnsupportedModalityError) Is(target error) bool {
	return target == ErrUnsupportedModality
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnsupportedModality)
}
