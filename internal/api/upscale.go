package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/marchcraft/upscaled/internal/engine"
	"github.com/marchcraft/upscaled/internal/model"
)

// multipartOverhead is headroom on top of the payload ceiling for multipart
// boundaries and form fields. The engine enforces the exact image-size limit.
const multipartOverhead = 64 << 10

// upscaleResponse is the JSON body both upscale endpoints return on success.
type upscaleResponse struct {
	Success        bool                 `json:"success"`
	OriginalSize   string               `json:"original_size"`
	UpscaledSize   string               `json:"upscaled_size"`
	ScaleUsed      int                  `json:"scale_used"`
	Backend        string               `json:"backend"`
	BackendQuality string               `json:"backend_quality"`
	MemoryUsedMB   float64              `json:"memory_used_mb"`
	Format         string               `json:"format"`
	Base64Image    string               `json:"base64_image"`
	ProcessingInfo model.ProcessingInfo `json:"processing_info"`
}

// upscaleBase64Request is the JSON body for POST /upscale-base64.
type upscaleBase64Request struct {
	ImageBase64 string `json:"image_base64"`
	Scale       int    `json:"scale"`
	Model       string `json:"model"`
	Format      string `json:"format"`
}

func (s *Server) handleUpscale(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody+multipartOverhead)

	file, _, err := r.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "missing or unreadable file field")
		return
	}
	defer file.Close()

	// Read one byte past the ceiling so the engine sees (and rejects)
	// oversized payloads with its own validation error.
	image, err := io.ReadAll(io.LimitReader(file, s.maxBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	scale, ok := parseScale(r.FormValue("scale"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "scale must be an integer")
		return
	}

	s.runUpscale(w, r, model.UpscaleRequest{
		Image:  image,
		Scale:  scale,
		Model:  defaulted(r.FormValue("model"), model.ModelAuto),
		Format: defaulted(r.FormValue("format"), model.FormatAuto),
	})
}

func (s *Server) handleUpscaleBase64(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody*2+multipartOverhead) // base64 inflates ~4/3

	var req upscaleBase64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ImageBase64 == "" {
		s.writeError(w, http.StatusBadRequest, "image_base64 is required")
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "image_base64 is not valid base64")
		return
	}

	scale := req.Scale
	if scale == 0 {
		scale = 4
	}

	s.runUpscale(w, r, model.UpscaleRequest{
		Image:  image,
		Scale:  scale,
		Model:  defaulted(req.Model, model.ModelAuto),
		Format: defaulted(req.Format, model.FormatAuto),
	})
}

// runUpscale hands the normalized request to the orchestrator and writes the
// shared response shape.
func (s *Server) runUpscale(w http.ResponseWriter, r *http.Request, req model.UpscaleRequest) {
	result, err := s.engine.Upscale(r.Context(), req)
	if err != nil {
		s.writeUpscaleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, upscaleResponse{
		Success:        true,
		OriginalSize:   result.OriginalSize,
		UpscaledSize:   result.UpscaledSize,
		ScaleUsed:      result.ScaleUsed,
		Backend:        result.Backend,
		BackendQuality: result.BackendQuality,
		MemoryUsedMB:   result.MemoryUsedMB,
		Format:         result.Format,
		Base64Image:    base64.StdEncoding.EncodeToString(result.Image),
		ProcessingInfo: result.Processing,
	})
}

// writeUpscaleError maps orchestrator errors onto the HTTP contract:
// validation failures are 4xx with no backend field, exhausted chains are a
// 500 with backend "none".
func (s *Server) writeUpscaleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.TooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, status, verr.Error())
		return
	}

	var allFailed *engine.AllBackendsFailedError
	if errors.As(err, &allFailed) {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   allFailed.Error(),
			"backend": model.BackendNone,
		})
		return
	}

	if r.Context().Err() != nil {
		// Client went away; the response is best-effort.
		s.logger.Debug("request cancelled", "error", err)
		return
	}

	s.logger.Error("upscale failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func parseScale(v string) (int, bool) {
	if v == "" {
		return 4, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func defaulted(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// isBodyTooLarge reports whether err came from http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
