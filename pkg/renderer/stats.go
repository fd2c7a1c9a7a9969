package renderer

import (
	"image"
	"time"
)

// FrameStats contains statistics about a rendered frame
type FrameStats struct {
	Width            int           // Rendered width in pixels
	Height           int           // Rendered height in pixels
	Rows             int           // Rows completed
	Workers          int           // Workers in the pool
	Duration         time.Duration // Wall time spent shading
	AverageLuminance float64       // Mean perceptual luminance in [0, 1]
}

// PixelsPerSecond returns the shading throughput of the frame
func (s FrameStats) PixelsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Width*s.Height) / s.Duration.Seconds()
}

// CalculateAverageLuminance returns the mean Rec. 709 luminance of an image
func CalculateAverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			total += (0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)) / 0xffff
		}
	}
	return total / float64(pixels)
}
