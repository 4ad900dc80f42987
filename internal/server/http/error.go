package http

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ekisa-team/flamingo/internal/avsr"
)

// toHTTPError maps a pipeline error to a structured HTTP error.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, avsr.ErrValidation), errors.Is(err, avsr.ErrUnsupportedModality):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, avsr.ErrInvalidInput):
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case errors.Is(err, avsr.ErrCheckpoint):
		return huma.Error503ServiceUnavailable("model is unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("transcription timed out", err)
	case errors.Is(err, avsr.ErrResource), errors.Is(err, avsr.ErrConfiguration):
		return huma.Error500InternalServerError("server failed to process the request", err)
	default:
		return huma.Error500InternalServerError("transcription failed", err)
	}
}
