package shading

import (
	"github.com/chewxy/math32"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/marcher"
)

// Shader computes the color seen along a camera ray
type Shader interface {
	Shade(origin, direction core.Vec3) core.Color
}

// Palette colors shared by the terrain shaders
var (
	SkyHorizon = core.RGB(255, 220, 200)
	SkyZenith  = core.RGB(64, 127, 255)
	Grass      = core.RGB(128, 255, 64)
	Water      = core.RGB(16, 64, 128)
	Beach      = core.RGB(255, 240, 128)
	Rock       = core.RGB(40, 40, 40)
	Snow       = core.White
	Sunlight   = core.RGB(255, 250, 240)
	SkyLight   = core.RGB(16, 32, 96)
)

// MarchConfig is the step budget used for primary and shadow rays
type MarchConfig struct {
	MaxSteps int
	StepSize float32
}

// DefaultMarchConfig returns the budget tuned for the built-in scenes
func DefaultMarchConfig() MarchConfig {
	return MarchConfig{
		MaxSteps: 300,
		StepSize: 0.5,
	}
}

// DefaultFogDistance is the distance at which terrain is fully fogged out
const DefaultFogDistance float32 = 150.0

// Sky returns the background color for a ray: a horizon-to-zenith gradient driven
// by the upward component of the direction.
func Sky(direction core.Vec3) core.Color {
	upness := core.Restrict(direction.Dot(core.Up)+0.2, 0, 1)
	return SkyHorizon.Blend(SkyZenith, upness)
}

// FogFactor returns how much of the sky shows through at the given distance:
// 0 at the camera, 1 at the cutoff and beyond.
func FogFactor(distance, cutoff float32) float32 {
	return core.Restrict(distance/cutoff, 0, 1)
}

// HeightFactor maps elevation [-6, 3] onto a [0, 1] brightness
func HeightFactor(z float32) float32 {
	return core.Restrict(core.Remap(z, -6, 3, 0, 1), 0, 1)
}

// SimpleShader colors terrain by elevation only, with sky and fog
type SimpleShader struct {
	Marcher     *marcher.Marcher
	March       MarchConfig
	FogDistance float32
}

// NewSimpleShader creates a SimpleShader with default budgets
func NewSimpleShader(m *marcher.Marcher) *SimpleShader {
	return &SimpleShader{
		Marcher:     m,
		March:       DefaultMarchConfig(),
		FogDistance: DefaultFogDistance,
	}
}

// Shade implements Shader
func (s *SimpleShader) Shade(origin, direction core.Vec3) core.Color {
	direction = direction.Normalize()
	sky := Sky(direction)
	hit, ok := s.Marcher.March(origin, direction, s.March.MaxSteps, s.March.StepSize)
	if !ok {
		return sky
	}
	dist := hit.Point.Subtract(origin).Length()
	if dist > s.FogDistance {
		return sky
	}
	color := Grass.Scale(HeightFactor(hit.Point.Z))
	return color.Blend(sky, FogFactor(dist, s.FogDistance))
}

// TerrainShader colors terrain in elevation and slope bands and lights it with a
// shadowed sun plus an ambient sky term.
type TerrainShader struct {
	Marcher     *marcher.Marcher
	March       MarchConfig
	FogDistance float32
	LightDir    core.Vec3 // Unit vector towards the sun
	ShadowBias  float32   // Offset along the normal for shadow probes

	WaterLevel float32 // Elevations at or below are water
	BeachLevel float32 // Elevations at or below are beach
	RockStart  float32 // Grass starts turning to rock here
	RockFull   float32 // Fully rock at and above this elevation
}

// NewTerrainShader creates a TerrainShader with the default palette bands
func NewTerrainShader(m *marcher.Marcher) *TerrainShader {
	return &TerrainShader{
		Marcher:     m,
		March:       DefaultMarchConfig(),
		FogDistance: DefaultFogDistance,
		LightDir:    core.NewVec3(2.0, 0.2, 1.5).Normalize(),
		ShadowBias:  0.04,
		WaterLevel:  -0.95,
		BeachLevel:  -0.5,
		RockStart:   6,
		RockFull:    10,
	}
}

// Shade implements Shader
func (s *TerrainShader) Shade(origin, direction core.Vec3) core.Color {
	direction = direction.Normalize()
	sky := Sky(direction)
	hit, ok := s.Marcher.March(origin, direction, s.March.MaxSteps, s.March.StepSize)
	if !ok {
		return sky
	}
	dist := hit.Point.Subtract(origin).Length()
	if dist > s.FogDistance {
		return sky
	}
	lit := s.Albedo(hit).Modulate(s.Light(hit))
	return lit.Blend(sky, FogFactor(dist, s.FogDistance))
}

// Albedo returns the unlit material color of a hit
func (s *TerrainShader) Albedo(hit marcher.Hit) core.Color {
	z := hit.Point.Z
	switch {
	case z <= s.WaterLevel:
		return Water
	case z <= s.BeachLevel:
		return Beach
	}
	rockFac := core.Remap(core.Restrict(z, s.RockStart, s.RockFull), s.RockStart, s.RockFull, 0, 1)
	// flat rock collects snow, steep faces stay bare
	snowFac := math32.Sqrt(core.Restrict(hit.Normal.Z, 0, 1))
	rock := Rock.Blend(Snow, snowFac)
	return Grass.Scale(HeightFactor(z)).Blend(rock, rockFac)
}

// Band names the material band of an elevation
func (s *TerrainShader) Band(z float32) string {
	switch {
	case z <= s.WaterLevel:
		return "water"
	case z <= s.BeachLevel:
		return "beach"
	case z >= s.RockFull:
		return "rock"
	case z > s.RockStart:
		return "scree"
	}
	return "grass"
}

// Light returns the combined sun and sky light arriving at a hit
func (s *TerrainShader) Light(hit marcher.Hit) core.Color {
	sun := s.SunFactor(hit)
	diffuse := core.Restrict(hit.Normal.Dot(s.LightDir), 0, 1) * sun
	skyFac := core.Restrict(core.Remap(hit.Normal.Z, 0, 1, 0.4, 1), 0, 1)
	return Sunlight.Scale(diffuse).Add(SkyLight.Scale(skyFac))
}

// SunFactor is 1 when a probe towards the light escapes the terrain and 0 otherwise
func (s *TerrainShader) SunFactor(hit marcher.Hit) float32 {
	probe := hit.Point.Add(hit.Normal.Multiply(s.ShadowBias))
	if _, blocked := s.Marcher.March(probe, s.LightDir, s.March.MaxSteps, s.March.StepSize); blocked {
		return 0
	}
	return 1
}
