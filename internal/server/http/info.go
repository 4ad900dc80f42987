package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/model"
)

// Catalog describes what the service can serve.
type Catalog interface {
	Languages() avsr.Languages
	States() []model.Info
}

type (
	// LanguagesOutput is the huma output for the ListLanguages operation.
	LanguagesOutput struct {
		Body struct {
			Languages map[string]string `json:"languages"`
			Auto      string            `json:"auto"`
		}
	}

	// ModelsOutput is the huma output for the ListModels operation.
	ModelsOutput struct {
		Body struct {
			Models []model.Info `json:"models"`
		}
	}

	// HealthOutput is the huma output for the Health operation.
	HealthOutput struct {
		Body struct {
			Status string `json:"status"`
			Loaded int    `json:"loaded"`
			Failed int    `json:"failed"`
		}
	}
)

// InfoHandler handles the read-only service endpoints.
type InfoHandler struct {
	catalog Catalog
}

// NewInfoHandler creates a new InfoHandler instance.
func NewInfoHandler(api huma.API, catalog Catalog) *InfoHandler {
	h := &InfoHandler{catalog: catalog}

	huma.Register(api, huma.Operation{
		OperationID: "list-languages",
		Method:      http.MethodGet,
		Path:        "/languages",
		Summary:     "List supported languages",
		Tags:        []string{"info"},
	}, h.handleLanguages)

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List model states",
		Tags:        []string{"info"},
	}, h.handleModels)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"info"},
	}, h.handleHealth)

	return h
}

func (h *InfoHandler) handleLanguages(ctx context.Context, _ *struct{}) (*LanguagesOutput, error) {
	out := &LanguagesOutput{}
	out.Body.Languages = h.catalog.Languages().Names()
	out.Body.Auto = avsr.AutoLanguage
	return out, nil
}

func (h *InfoHandler) handleModels(ctx context.Context, _ *struct{}) (*ModelsOutput, error) {
	out := &ModelsOutput{}
	out.Body.Models = h.catalog.States()
	if out.Body.Models == nil {
		out.Body.Models = []model.Info{}
	}
	return out, nil
}

// handleHealth reports degraded when any model state failed to load.
func (h *InfoHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	for _, s := range h.catalog.States() {
		switch s.Status {
		case model.StatusLoaded:
			out.Body.Loaded++
		case model.StatusFailed:
			out.Body.Failed++
		}
	}
	if out.Body.Failed > 0 {
		out.Body.Status = "degraded"
	}
	return out, nil
}
