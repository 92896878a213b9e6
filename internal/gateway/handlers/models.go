package handlers

import (
	"net/http"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

type ModelsHandler struct {
	registry *registry.Registry
}

func NewModelsHandler(reg *registry.Registry) *ModelsHandler {
	return &ModelsHandler{registry: reg}
}

type modelPricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

type modelEntry struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Provider          string       `json:"provider"`
	Description       string       `json:"description,omitempty"`
	SupportsStreaming bool         `json:"supports_streaming"`
	Pricing           modelPricing `json:"pricing"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// HandleListModels handles GET /v1/models. Aliases are resolved at request
// time and never listed.
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	catalog := h.registry.List()

	entries := make([]modelEntry, 0, len(catalog))
	for _, m := range catalog {
		entries = append(entries, modelEntry{
			ID:                m.Name,
			Object:            "model",
			Provider:          string(m.Family),
			Description:       m.Description,
			SupportsStreaming: m.SupportsStreaming,
			Pricing: modelPricing{
				InputPer1K:  m.InputPer1K,
				OutputPer1K: m.OutputPer1K,
			},
		})
	}

	writeJSON(w, http.StatusOK, modelList{Object: "list", Data: entries})
}
