package backend

import (
	"context"

	"github.com/marchcraft/upscaled/internal/model"
)

// Upscaler is the interface every upscaling backend implements. The
// orchestrator only ever talks to backends through this surface; it never
// inspects backend-internal state.
type Upscaler interface {
	// Upscale produces upscaled image bytes for the given request, or an
	// error describing why the attempt failed. The context carries the
	// per-attempt deadline and request cancellation.
	Upscale(ctx context.Context, req Request) (Result, error)

	// Profile reports the backend's static resource and capability profile.
	Profile() Profile
}

// Request describes one upscale attempt handed to a backend. Width and
// Height are the source dimensions, already decoded by the orchestrator.
type Request struct {
	Image    []byte
	Width    int
	Height   int
	Scale    int
	Model    string // concrete model name, or "auto"
	TileSize int
}

// Result is a successful backend output.
type Result struct {
	Image  []byte
	Width  int
	Height int
}

// Profile holds a backend's identity, quality tier and resource model.
// BaseMemoryMB and MemPerMegapixelMB feed the memory estimator; TileSizes is
// the discrete set the tile sizer picks from, largest first.
type Profile struct {
	ID                string   `json:"id"`
	Quality           string   `json:"quality"`
	Rank              int      `json:"-"` // lower rank is tried first
	BaseMemoryMB      float64  `json:"base_memory_mb"`
	MemPerMegapixelMB float64  `json:"mem_per_megapixel_mb"`
	SpeedClass        string   `json:"speed_class"`
	TileSizes         []int    `json:"tile_sizes,omitempty"`
	Models            []string `json:"models,omitempty"`

	// Terminal marks the backend with no external runtime dependency. The
	// terminal backend is always available and always last in quality order.
	Terminal bool `json:"terminal"`
}

// SupportsModel reports whether the backend can serve the given model hint.
// "auto" matches every backend; the terminal backend accepts any hint so the
// fallback chain never empties.
func (p Profile) SupportsModel(hint string) bool {
	if hint == "" || hint == model.ModelAuto || p.Terminal || len(p.Models) == 0 {
		return true
	}
	for _, m := range p.Models {
		if m == hint {
			return true
		}
	}
	return false
}
