package engine

import "github.com/marchcraft/upscaled/internal/backend"

// EstimateMB predicts the peak memory in megabytes for upscaling a width x
// height image by scale on the given backend. Pure function, monotonically
// increasing in width, height and scale.
func EstimateMB(width, height, scale int, p backend.Profile) float64 {
	outputMegapixels := float64(width) * float64(height) * float64(scale) * float64(scale) / 1e6
	return p.BaseMemoryMB + p.MemPerMegapixelMB*outputMegapixels
}
