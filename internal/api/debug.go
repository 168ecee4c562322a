package api

import (
	"net/http"

	"github.com/marchcraft/upscaled/internal/model"
)

// debugRecentLimit caps how many recent requests /debug returns.
const debugRecentLimit = 20

// debugRequest pairs a request record with its per-attempt diagnostic log.
type debugRequest struct {
	Request  *model.RequestRecord `json:"request"`
	Attempts []model.Attempt      `json:"attempts"`
}

// debugResponse is the JSON response for GET /debug.
type debugResponse struct {
	Backends []backendStatus `json:"backends"`
	Recent   []debugRequest  `json:"recent"`
}

// handleDebug exposes probe errors and the per-attempt history of recent
// requests. Intermediate backend failures are visible only here, never in
// upscale responses.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecent(r.Context(), debugRecentLimit)
	if err != nil {
		s.logger.Error("list recent records", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list recent requests")
		return
	}

	recent := make([]debugRequest, 0, len(records))
	for _, rec := range records {
		attempts, err := s.store.GetAttempts(r.Context(), rec.ID)
		if err != nil {
			s.logger.Error("get attempts", "request_id", rec.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load attempts")
			return
		}
		if attempts == nil {
			attempts = []model.Attempt{}
		}
		recent = append(recent, debugRequest{Request: rec, Attempts: attempts})
	}

	s.writeJSON(w, http.StatusOK, debugResponse{
		Backends: s.backendStatuses(true),
		Recent:   recent,
	})
}
