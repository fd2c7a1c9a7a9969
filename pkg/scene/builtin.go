package scene

import (
	"github.com/df07/go-terrain-marcher/pkg/marcher"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
	"github.com/df07/go-terrain-marcher/pkg/shading"
	"github.com/df07/go-terrain-marcher/pkg/terrain"
)

const builtinGroup = "Built-in Scenes"

type builtin struct {
	info  SceneInfo
	build func() *Scene
}

var builtins = []builtin{
	{
		info: SceneInfo{
			ID:          "mountains",
			Name:        "Mountains",
			DisplayName: "Mountains",
			Description: "Sharp peaks over flat plains with water, beaches, snow and shadows",
			Group:       builtinGroup,
			Type:        "builtin",
		},
		build: NewMountainsScene,
	},
	{
		info: SceneInfo{
			ID:          "waves",
			Name:        "Waves",
			DisplayName: "Waves",
			Description: "Rolling hills shaded by elevation only",
			Group:       builtinGroup,
			Type:        "builtin",
		},
		build: NewWavesScene,
	},
	{
		info: SceneInfo{
			ID:          "flat",
			Name:        "Flat",
			DisplayName: "Flat",
			Description: "Level ground for checking sky, fog and lighting",
			Group:       builtinGroup,
			Type:        "builtin",
		},
		build: NewFlatScene,
	},
}

// NewMountainsScene creates the lit mountain range with refined marching
func NewMountainsScene() *Scene {
	m := marcher.New(terrain.Mountains)
	return &Scene{
		Field:   terrain.Mountains,
		Marcher: m,
		Shader:  shading.NewTerrainShader(m),
		Camera:  renderer.DefaultCamera(),
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

// NewWavesScene creates the rolling hills. The first crossing is taken as the hit,
// which gives the visible stepping of the coarse march.
func NewWavesScene() *Scene {
	m := marcher.New(terrain.Waves).WithoutRefinement()
	return &Scene{
		Field:   terrain.Waves,
		Marcher: m,
		Shader:  shading.NewSimpleShader(m),
		Camera:  renderer.DefaultCamera(),
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

// NewFlatScene creates level ground at elevation zero
func NewFlatScene() *Scene {
	field := terrain.Flat(0)
	m := marcher.New(field)
	return &Scene{
		Field:   field,
		Marcher: m,
		Shader:  shading.NewTerrainShader(m),
		Camera:  renderer.DefaultCamera(),
		Width:   DefaultWidth,
		Height:  DefaultHeight,
	}
}

// ListBuiltinScenes returns the metadata of every built-in scene
func ListBuiltinScenes() []SceneInfo {
	scenes := make([]SceneInfo, 0, len(builtins))
	for _, b := range builtins {
		scenes = append(scenes, b.info)
	}
	return scenes
}
