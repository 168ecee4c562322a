package api

import (
	"net/http"

	"github.com/marchcraft/upscaled/internal/backend/ncnn"
	"github.com/marchcraft/upscaled/internal/model"
)

// modelLister is implemented by backends that can enumerate the models
// actually installed on disk, rather than just the ones they support.
type modelLister interface {
	InstalledModels() []string
}

// modelsResponse is the JSON response for GET /models.
type modelsResponse struct {
	Models          map[string][]string `json:"models"`
	DefaultModel    string              `json:"default_model"`
	SupportedScales []int               `json:"supported_scales"`
}

// handleModels lists the models each available backend can serve.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := make(map[string][]string)
	for _, e := range s.registry.Available() {
		if lister, ok := e.Upscaler.(modelLister); ok {
			models[e.Profile.ID] = lister.InstalledModels()
			continue
		}
		models[e.Profile.ID] = e.Profile.Models
	}

	s.writeJSON(w, http.StatusOK, modelsResponse{
		Models:          models,
		DefaultModel:    ncnn.DefaultModel,
		SupportedScales: model.SupportedScales,
	})
}
