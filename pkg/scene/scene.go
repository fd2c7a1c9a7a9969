package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/df07/go-terrain-marcher/pkg/marcher"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
	"github.com/df07/go-terrain-marcher/pkg/shading"
	"github.com/df07/go-terrain-marcher/pkg/terrain"
)

// ErrUnknownScene is returned when a scene id matches no built-in scene or preset
var ErrUnknownScene = errors.New("unknown scene")

// Default output size for scenes that don't set one
const (
	DefaultWidth  = 640
	DefaultHeight = 360
)

// Scene contains all the elements needed for rendering a terrain view
type Scene struct {
	Info    SceneInfo
	Field   terrain.HeightField
	Marcher *marcher.Marcher
	Shader  shading.Shader
	Camera  renderer.Camera
	Width   int
	Height  int
}

// New creates the scene with the given id. Built-in scenes are addressed by name,
// preset files by "preset:<file name>".
func New(id string) (*Scene, error) {
	if strings.HasPrefix(id, presetPrefix) {
		presets, err := ListPresetScenes()
		if err != nil {
			return nil, err
		}
		for _, info := range presets {
			if info.ID == id {
				return LoadPreset(info.FilePath)
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}

	if s, ok := newBuiltin(id); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScene, id)
}

func newBuiltin(id string) (*Scene, bool) {
	for _, b := range builtins {
		if b.info.ID == id {
			s := b.build()
			s.Info = b.info
			return s, true
		}
	}
	return nil, false
}

// SetMarch changes the step budget and fog distance of the scene's shader
func (s *Scene) SetMarch(march shading.MarchConfig, fogDistance float32) {
	switch sh := s.Shader.(type) {
	case *shading.TerrainShader:
		sh.March = march
		sh.FogDistance = fogDistance
	case *shading.SimpleShader:
		sh.March = march
		sh.FogDistance = fogDistance
	}
}

// March returns the step budget and fog distance the scene's shader uses
func (s *Scene) March() (shading.MarchConfig, float32) {
	switch sh := s.Shader.(type) {
	case *shading.TerrainShader:
		return sh.March, sh.FogDistance
	case *shading.SimpleShader:
		return sh.March, sh.FogDistance
	}
	return shading.DefaultMarchConfig(), shading.DefaultFogDistance
}
