package api

import (
	"net/http"

	"github.com/marchcraft/upscaled/internal/store"
)

// backendStatus is one registry entry in /status and /debug responses.
type backendStatus struct {
	ID         string `json:"id"`
	Quality    string `json:"quality"`
	Available  bool   `json:"available"`
	SpeedClass string `json:"speed_class,omitempty"`
	Terminal   bool   `json:"terminal"`
	TileSizes  []int  `json:"tile_sizes,omitempty"`
	ProbeError string `json:"probe_error,omitempty"`
}

// statusResponse is the JSON response for GET /status.
type statusResponse struct {
	Backends []backendStatus `json:"backends"`
	Stats    *store.Stats    `json:"stats"`
}

// handleStatus exposes the registry snapshot and aggregate request stats.
// Read-only: it never re-probes backends.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Backends: s.backendStatuses(false),
		Stats:    stats,
	})
}

// backendStatuses snapshots the registry. Probe errors are only included
// when withProbeErrors is set; /status keeps them out of the regular surface.
func (s *Server) backendStatuses(withProbeErrors bool) []backendStatus {
	entries := s.registry.Entries()
	out := make([]backendStatus, 0, len(entries))
	for _, e := range entries {
		bs := backendStatus{
			ID:         e.Profile.ID,
			Quality:    e.Profile.Quality,
			Available:  e.Available,
			SpeedClass: e.Profile.SpeedClass,
			Terminal:   e.Profile.Terminal,
			TileSizes:  e.Profile.TileSizes,
		}
		if withProbeErrors {
			bs.ProbeError = e.ProbeErr
		}
		out = append(out, bs)
	}
	return out
}
