package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/imaging"
	"github.com/marchcraft/upscaled/internal/model"
)

// buildResult normalizes a successful backend output into the response
// contract: one encoded payload in the resolved format, "WxH" dimension
// strings, and the profile/estimate of the backend that actually produced
// the bytes. It never re-invokes a backend.
func buildResult(
	id string,
	req model.UpscaleRequest,
	src source,
	prof backend.Profile,
	res backend.Result,
	estMB float64,
	tile int,
	attempts int,
	elapsed time.Duration,
) (*model.UpscaleResult, error) {
	format := resolveFormat(req.Format, src.format)

	data, w, h, err := imaging.Transcode(res.Image, format)
	if err != nil {
		return nil, fmt.Errorf("normalize backend output: %w", err)
	}

	return &model.UpscaleResult{
		ID:             id,
		Success:        true,
		OriginalSize:   model.Size(src.width, src.height),
		UpscaledSize:   model.Size(w, h),
		ScaleUsed:      req.Scale,
		Backend:        prof.ID,
		BackendQuality: prof.Quality,
		MemoryUsedMB:   round1(estMB),
		Format:         format,
		Image:          data,
		Processing: model.ProcessingInfo{
			TileSize:    tile,
			Attempts:    attempts,
			EstimatedMB: round1(estMB),
			DurationMS:  elapsed.Milliseconds(),
		},
	}, nil
}

// resolveFormat maps the requested output format to a concrete one. "auto"
// keeps JPEG sources lossy and everything else lossless.
func resolveFormat(requested, sourceFormat string) string {
	switch requested {
	case model.FormatPNG, model.FormatJPEG:
		return requested
	default:
		if sourceFormat == "jpeg" {
			return model.FormatJPEG
		}
		return model.FormatPNG
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
