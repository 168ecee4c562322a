package api

import (
	"net/http"

	"github.com/marchcraft/upscaled/internal/model"
)

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status            string          `json:"status"`
	AvailableBackends map[string]bool `json:"available_backends"`
	SupportedScales   []int           `json:"supported_scales"`
	MaxFileSizeBytes  int64           `json:"max_file_size_bytes"`
}

// handleHealth reports overall health: "ok" when a high-quality backend is
// usable, "degraded" when only the classical fallback survived probing.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := make(map[string]bool)
	status := "degraded"
	for _, e := range s.registry.Entries() {
		available[e.Profile.ID] = e.Available
		if e.Available && e.Profile.Quality == model.QualityHigh {
			status = "ok"
		}
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:            status,
		AvailableBackends: available,
		SupportedScales:   model.SupportedScales,
		MaxFileSizeBytes:  s.maxBody,
	})
}
