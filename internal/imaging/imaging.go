// Package imaging provides the image decode/encode and resampling primitives
// shared by the upscaling backends and the response builder. Decoding
// understands PNG, JPEG and WebP; encoding targets PNG and JPEG only.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register webp decoding
)

// DefaultJPEGQuality is used when encoding JPEG output.
const DefaultJPEGQuality = 90

// Decode decodes image bytes and reports the source format ("png", "jpeg",
// "webp").
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Dimensions reads just the image header and returns width, height and the
// source format without decoding pixel data.
func Dimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Encode serializes img in the given format ("png" or "jpeg"). JPEG output is
// flattened onto a white background first, since JPEG has no alpha channel.
func Encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "jpeg":
		opts := &jpeg.Options{Quality: DefaultJPEGQuality}
		if err := jpeg.Encode(&buf, flatten(img), opts); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return buf.Bytes(), nil
}

// Transcode re-encodes image bytes into the target format, passing the data
// through untouched when it is already in that format. It returns the encoded
// bytes and the image dimensions.
func Transcode(data []byte, format string) ([]byte, int, int, error) {
	w, h, src, err := Dimensions(data)
	if err != nil {
		return nil, 0, 0, err
	}
	if src == format {
		return data, w, h, nil
	}

	img, _, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	out, err := Encode(img, format)
	if err != nil {
		return nil, 0, 0, err
	}
	return out, w, h, nil
}

// Resample scales img to width x height using Catmull-Rom interpolation.
func Resample(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// ResampleFast scales img using bilinear interpolation, trading quality for
// speed.
func ResampleFast(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// flatten composites img onto an opaque white background.
func flatten(img image.Image) image.Image {
	if opaque(img) {
		return img
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}

func opaque(img image.Image) bool {
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return o.Opaque()
	}
	return false
}
