package model

import (
	"fmt"
	"time"
)

// Backend identifiers. These are the values reported in the `backend` field
// of upscale responses and in /health.
const (
	BackendESRGAN    = "realesrgan"
	BackendNCNN      = "ncnn-vulkan"
	BackendClassical = "classical"

	// BackendNone is reported when every candidate failed.
	BackendNone = "none"
)

// Quality tiers, used to order fallback attempts.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
)

// Supported scale factors.
var SupportedScales = []int{2, 4, 8}

// ValidScale reports whether s is a supported upscale factor.
func ValidScale(s int) bool {
	for _, v := range SupportedScales {
		if s == v {
			return true
		}
	}
	return false
}

// Output formats.
const (
	FormatAuto = "auto"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// ValidFormat reports whether f is an accepted output format.
func ValidFormat(f string) bool {
	return f == FormatAuto || f == FormatPNG || f == FormatJPEG
}

// ModelAuto is the model hint meaning "let the backend pick".
const ModelAuto = "auto"

// UpscaleRequest is a single upscale job as seen by the orchestrator. Both
// HTTP endpoints normalize into this shape before any backend is consulted.
type UpscaleRequest struct {
	Image  []byte
	Scale  int
	Model  string // "auto" or a concrete model name
	Format string // "auto", "png" or "jpeg"
}

// ProcessingInfo carries per-request diagnostics attached to a successful
// response.
type ProcessingInfo struct {
	TileSize    int     `json:"tile_size"`
	Attempts    int     `json:"attempts"`
	EstimatedMB float64 `json:"estimated_mb"`
	DurationMS  int64   `json:"duration_ms"`
}

// UpscaleResult is the normalized outcome of a successful upscale. The
// Backend field always names the backend whose attempt produced Image; it is
// never inferred.
type UpscaleResult struct {
	ID             string
	Success        bool
	OriginalSize   string // "WxH"
	UpscaledSize   string // "WxH"
	ScaleUsed      int
	Backend        string
	BackendQuality string
	MemoryUsedMB   float64
	Format         string
	Image          []byte
	Processing     ProcessingInfo
}

// Size formats image dimensions the way they appear in responses.
func Size(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}

// Attempt outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Attempt records one backend try within a request's fallback chain.
// Backends that were skipped because they are unavailable never get an
// Attempt record.
type Attempt struct {
	RequestID  string    `json:"request_id"`
	Seq        int       `json:"seq"`
	Backend    string    `json:"backend"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	TileSize   int       `json:"tile_size"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Request record statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// RequestRecord is the persisted summary of one upscale request, kept for
// /debug and /status. Rejected requests have zero attempts by construction.
type RequestRecord struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Backend      string    `json:"backend,omitempty"`
	Model        string    `json:"model,omitempty"`
	Scale        int       `json:"scale"`
	OriginalSize string    `json:"original_size,omitempty"`
	UpscaledSize string    `json:"upscaled_size,omitempty"`
	MemoryMB     float64   `json:"memory_mb,omitempty"`
	DurationMS   int       `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
