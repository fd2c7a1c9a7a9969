package core

import (
	"fmt"
	"image/color"
)

// Color is an 8-bit RGB color. All arithmetic saturates to [0, 255].
type Color struct {
	R, G, B uint8
}

// RGB creates a new Color
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// saturate rounds a channel value and clamps it into the uint8 range
func saturate(v float32) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Scale multiplies every channel by f
func (c Color) Scale(f float32) Color {
	return Color{
		R: saturate(float32(c.R) * f),
		G: saturate(float32(c.G) * f),
		B: saturate(float32(c.B) * f),
	}
}

// Add returns the channel-wise sum of two colors
func (c Color) Add(other Color) Color {
	return Color{
		R: saturate(float32(c.R) + float32(other.R)),
		G: saturate(float32(c.G) + float32(other.G)),
		B: saturate(float32(c.B) + float32(other.B)),
	}
}

// Modulate multiplies two colors channel-wise, treating 255 as 1.0
func (c Color) Modulate(other Color) Color {
	return Color{
		R: uint8(uint16(c.R) * uint16(other.R) / 255),
		G: uint8(uint16(c.G) * uint16(other.G) / 255),
		B: uint8(uint16(c.B) * uint16(other.B) / 255),
	}
}

// Blend linearly interpolates from c towards other. t=0 yields c, t=1 yields other.
func (c Color) Blend(other Color, t float32) Color {
	lerp := func(a, b uint8) uint8 {
		return saturate(float32(a) + (float32(b)-float32(a))*t)
	}
	return Color{
		R: lerp(c.R, other.R),
		G: lerp(c.G, other.G),
		B: lerp(c.B, other.B),
	}
}

// Luminance returns the perceptual luminance in [0, 1]
func (c Color) Luminance() float32 {
	return (0.2126*float32(c.R) + 0.7152*float32(c.G) + 0.0722*float32(c.B)) / 255
}

// ToRGBA converts to an opaque image/color value
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Hex formats the color as #rrggbb
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
