package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/terrain"
)

// DefaultMaxHeightMapSize bounds the longer side of a loaded height map
const DefaultMaxHeightMapSize = 1024

// HeightMap holds grayscale samples in [0, 1], row 0 being the top of the image
type HeightMap struct {
	Width   int
	Height  int
	Samples []float32
}

// LoadHeightMap loads a PNG or JPEG image as a height map. Images larger than
// maxSize on either side are downsampled first; maxSize <= 0 keeps the full image.
func LoadHeightMap(filename string, maxSize int) (*HeightMap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open height map: %w", err)
	}
	defer file.Close()

	// Decode image (auto-detects PNG/JPEG from file header)
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode height map: %w", err)
	}

	bounds := img.Bounds()
	if maxSize > 0 && (bounds.Dx() > maxSize || bounds.Dy() > maxSize) {
		img = resize.Thumbnail(uint(maxSize), uint(maxSize), img, resize.Bilinear)
	}
	return NewHeightMap(img), nil
}

// NewHeightMap converts an image to height samples using its luminance
func NewHeightMap(img image.Image) *HeightMap {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	samples := make([]float32, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns uint32 in [0, 65535]
			samples[y*width+x] = (0.2126*float32(r) + 0.7152*float32(g) + 0.0722*float32(b)) / 65535
		}
	}

	return &HeightMap{Width: width, Height: height, Samples: samples}
}

// At returns the sample at column x and row y, clamped to the map edges
func (hm *HeightMap) At(x, y int) float32 {
	x = min(max(x, 0), hm.Width-1)
	y = min(max(y, 0), hm.Height-1)
	return hm.Samples[y*hm.Width+x]
}

// Field maps the height map onto a square of side extent centered on the origin,
// with the top of the image towards +Y. Samples are interpolated bilinearly and
// scaled from [0, 1] to [low, high]. Outside the square the field is low.
func (hm *HeightMap) Field(extent, low, high float32) terrain.HeightField {
	half := extent / 2
	return func(x, y float32) float32 {
		if hm.Width == 0 || hm.Height == 0 || x < -half || x > half || y < -half || y > half {
			return low
		}
		// pixel centers sit at integer coordinates
		u := core.Remap(x, -half, half, 0, float32(hm.Width)) - 0.5
		v := core.Remap(y, half, -half, 0, float32(hm.Height)) - 0.5

		x0, y0 := math32.Floor(u), math32.Floor(v)
		fx, fy := u-x0, v-y0
		ix, iy := int(x0), int(y0)

		top := lerp(hm.At(ix, iy), hm.At(ix+1, iy), fx)
		bottom := lerp(hm.At(ix, iy+1), hm.At(ix+1, iy+1), fx)
		return core.Remap(lerp(top, bottom, fy), 0, 1, low, high)
	}
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
