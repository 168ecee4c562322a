// Package classical implements the terminal fallback backend: pure-Go image
// resampling with no external runtime dependency. It is the backend the
// fallback chain relies on always being available.
package classical

import (
	"context"
	"fmt"
	"image"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/imaging"
	"github.com/marchcraft/upscaled/internal/model"
)

// Resampler kernels selectable via the model hint.
const (
	ModelCatmullRom = "resample-catmullrom"
	ModelBilinear   = "resample-bilinear"
)

var profile = backend.Profile{
	ID:                model.BackendClassical,
	Quality:           model.QualityMedium,
	Rank:              2,
	BaseMemoryMB:      100,
	MemPerMegapixelMB: 4,
	SpeedClass:        "fast",
	Models:            []string{ModelCatmullRom, ModelBilinear},
	Terminal:          true,
}

// Upscaler resamples images with golang.org/x/image kernels. Scaling runs in
// doubling passes, which preserves noticeably more detail at 4x and 8x than a
// single pass.
type Upscaler struct{}

// New returns the classical resampling backend.
func New() *Upscaler { return &Upscaler{} }

// Probe returns the probe table entry. Initialization cannot fail: the
// backend has no binary, no sidecar and no model files to check.
func Probe() backend.Probe {
	return backend.Probe{
		Profile: profile,
		Init: func(_ context.Context) (backend.Upscaler, error) {
			return New(), nil
		},
	}
}

// Profile implements backend.Upscaler.
func (u *Upscaler) Profile() backend.Profile { return profile }

// Upscale implements backend.Upscaler. Output is always PNG; the response
// builder transcodes if the caller asked for JPEG.
func (u *Upscaler) Upscale(ctx context.Context, req backend.Request) (backend.Result, error) {
	img, _, err := imaging.Decode(req.Image)
	if err != nil {
		return backend.Result{}, err
	}

	out, err := u.scale(ctx, img, req.Scale, req.Model)
	if err != nil {
		return backend.Result{}, err
	}

	data, err := imaging.Encode(out, model.FormatPNG)
	if err != nil {
		return backend.Result{}, err
	}

	bounds := out.Bounds()
	return backend.Result{
		Image:  data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// scale doubles the image until the target scale is reached, checking for
// cancellation between passes.
func (u *Upscaler) scale(ctx context.Context, img image.Image, scale int, modelHint string) (image.Image, error) {
	resample := imaging.Resample
	if modelHint == ModelBilinear {
		resample = imaging.ResampleFast
	}

	targetW := img.Bounds().Dx() * scale
	targetH := img.Bounds().Dy() * scale

	current := img
	for current.Bounds().Dx() < targetW {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resample cancelled: %w", err)
		}
		w := min(current.Bounds().Dx()*2, targetW)
		h := min(current.Bounds().Dy()*2, targetH)
		current = resample(current, w, h)
	}

	// Guard against rounding drift on non-square inputs.
	if current.Bounds().Dx() != targetW || current.Bounds().Dy() != targetH {
		current = resample(current, targetW, targetH)
	}
	return current, nil
}
