package terrain

import (
	"github.com/chewxy/math32"

	"github.com/df07/go-terrain-marcher/pkg/core"
)

// HeightField maps a horizontal position to a terrain elevation, defining the
// implicit surface z = f(x, y). Implementations must be pure: they are evaluated
// concurrently from every render worker.
type HeightField func(x, y float32) float32

// Mountains produces sharp peaks over flat plains. Two sine-product ridge terms
// are summed with two lower-frequency massif terms, then squared with the sign
// preserved and floored at -1. The field is unbounded above.
func Mountains(x, y float32) float32 {
	ground := math32.Sin(x*0.5+math32.Sin(y*0.1))*math32.Sin(y*0.5+math32.Cos(x*0.05)) +
		math32.Sin(x*0.1)*math32.Sin(y*0.1)*2.0 +
		math32.Sin(x*0.02)*math32.Sin(y*0.02)*4.0
	return core.RestrictMin(ground*math32.Abs(ground), -1.0)
}

// Waves produces smooth rolling hills
func Waves(x, y float32) float32 {
	wavy := math32.Cos(x*0.2+math32.Sin(y*0.05)) * math32.Cos(y*0.2+math32.Sin(y*0.03))
	base := math32.Cos(x*0.1) * math32.Cos(y*0.1)
	return wavy*3.0 + base*2.0 - 0.5
}

// Flat returns a field of constant elevation
func Flat(elevation float32) HeightField {
	return func(x, y float32) float32 {
		return elevation
	}
}

// Bounds on the elevation of the built-in fields. The mountain ridge and massif
// terms sum to at most 7 before squaring.
const (
	MountainsCeiling float32 = 49
	WavesCeiling     float32 = 4.5
	WavesFloor       float32 = -5.5
)
