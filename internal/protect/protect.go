// Package protect prepares a disclosed profile image: a visible watermark
// band plus a downscale, so the delivered copy is identifiable and degraded
// relative to the catalog original.
package protect

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

const scaleFactor = 0.6

// Apply decodes src, stamps a translucent watermark band across the top,
// downscales to 60%, and re-encodes as PNG.
func Apply(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	stamped := watermark(img)
	scaled := downscale(stamped, scaleFactor)

	var out bytes.Buffer
	if err := png.Encode(&out, scaled); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return out.Bytes(), nil
}

// watermark overlays a translucent red band across the top tenth of the
// image. The band survives the downscale and any recompression.
func watermark(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	bandHeight := b.Dy() / 10
	if bandHeight < 8 {
		bandHeight = 8
	}
	band := image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+bandHeight)
	overlay := image.NewUniform(color.RGBA{R: 255, A: 96})
	draw.Draw(out, band, overlay, image.Point{}, draw.Over)
	return out
}

// downscale box-samples the image to factor times its original size.
func downscale(img *image.RGBA, factor float64) *image.RGBA {
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}
