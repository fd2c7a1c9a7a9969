package renderer

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Upscale resizes a low resolution frame to width x height with nearest-neighbor
// sampling, keeping the blocky look of a reduced render scale
func Upscale(img image.Image, width, height int) *image.RGBA {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		if rgba, ok := img.(*image.RGBA); ok {
			return rgba
		}
	}
	return toRGBA(resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor))
}

// Downscale shrinks a frame with bilinear filtering, used for thumbnails
func Downscale(img image.Image, width int) *image.RGBA {
	return toRGBA(resize.Resize(uint(width), 0, img, resize.Bilinear))
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}
