package engine

import "github.com/marchcraft/upscaled/internal/backend"

// defaultTileSizes is used for backends that do not declare their own set.
var defaultTileSizes = []int{512, 400, 256}

// TileSize picks the tile dimension for one attempt: the largest size in the
// backend's discrete set whose proportional footprint fits under budgetMB,
// falling back to the smallest size when nothing fits. The working-set part
// of the estimate shrinks with the square of the tile ratio, since the
// backend only holds one tile's worth of activations at a time.
func TileSize(estimatedMB, budgetMB float64, p backend.Profile) int {
	sizes := p.TileSizes
	if len(sizes) == 0 {
		sizes = defaultTileSizes
	}

	largest := sizes[0]
	for _, tile := range sizes {
		if tileFootprintMB(estimatedMB, p.BaseMemoryMB, tile, largest) <= budgetMB {
			return tile
		}
	}
	return sizes[len(sizes)-1]
}

// tileFootprintMB scales the working-set portion of an estimate by the
// squared tile ratio. The base allocation is resident regardless of tiling.
func tileFootprintMB(estimatedMB, baseMB float64, tile, largest int) float64 {
	working := estimatedMB - baseMB
	if working < 0 {
		working = 0
	}
	ratio := float64(tile) / float64(largest)
	return baseMB + working*ratio*ratio
}
