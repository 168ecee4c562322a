package classical_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/backend/classical"
	"github.com/marchcraft/upscaled/internal/imaging"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestProbeAlwaysSucceeds(t *testing.T) {
	p := classical.Probe()

	up, err := p.Init(context.Background())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !up.Profile().Terminal {
		t.Error("classical backend must be marked terminal")
	}
}

func TestUpscaleScales(t *testing.T) {
	u := classical.New()

	for _, scale := range []int{2, 4, 8} {
		res, err := u.Upscale(context.Background(), backend.Request{
			Image: encodePNG(t, 20, 10),
			Width: 20, Height: 10,
			Scale: scale,
			Model: "auto",
		})
		if err != nil {
			t.Fatalf("Upscale x%d: %v", scale, err)
		}
		if res.Width != 20*scale || res.Height != 10*scale {
			t.Errorf("x%d output = %dx%d, want %dx%d", scale, res.Width, res.Height, 20*scale, 10*scale)
		}
		if _, _, format, err := imaging.Dimensions(res.Image); err != nil || format != "png" {
			t.Errorf("x%d output format = %q (err %v), want png", scale, format, err)
		}
	}
}

func TestUpscaleBilinearHint(t *testing.T) {
	u := classical.New()

	res, err := u.Upscale(context.Background(), backend.Request{
		Image: encodePNG(t, 8, 8),
		Width: 8, Height: 8,
		Scale: 2,
		Model: classical.ModelBilinear,
	})
	if err != nil {
		t.Fatalf("Upscale: %v", err)
	}
	if res.Width != 16 || res.Height != 16 {
		t.Errorf("output = %dx%d, want 16x16", res.Width, res.Height)
	}
}

func TestUpscaleMalformedInput(t *testing.T) {
	u := classical.New()

	_, err := u.Upscale(context.Background(), backend.Request{
		Image: []byte("definitely not an image"),
		Scale: 2,
	})
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestUpscaleCancelled(t *testing.T) {
	u := classical.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Upscale(ctx, backend.Request{
		Image: encodePNG(t, 64, 64),
		Width: 64, Height: 64,
		Scale: 8,
	})
	if err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestUpscaleDeterministic(t *testing.T) {
	u := classical.New()
	req := backend.Request{
		Image: encodePNG(t, 16, 16),
		Width: 16, Height: 16,
		Scale: 4,
		Model: "auto",
	}

	a, err := u.Upscale(context.Background(), req)
	if err != nil {
		t.Fatalf("first Upscale: %v", err)
	}
	b, err := u.Upscale(context.Background(), req)
	if err != nil {
		t.Fatalf("second Upscale: %v", err)
	}
	if !bytes.Equal(a.Image, b.Image) {
		t.Error("identical input produced different output bytes")
	}
}
