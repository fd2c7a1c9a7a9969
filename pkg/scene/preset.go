package scene

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/loaders"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
)

// LoadPreset builds a scene from a preset file. After the metadata header, each
// line is a directive:
//
//	base mountains                 built-in scene to start from (required)
//	camera px py pz  dx dy dz      camera position and facing
//	march 400 0.4                  step budget and step size
//	fog 120                        distance at which terrain is fully fogged
//	size 800 450                   default output size
//	heightmap ridge.png 200 -1 12  image terrain: file, side length, low and high elevation
func LoadPreset(filePath string) (*Scene, error) {
	info, err := ParsePresetMetadata(filePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open preset: %w", err)
	}
	defer file.Close()

	var s *Scene
	var directives [][]string
	var lines []int

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "base" {
			if len(fields) != 2 {
				return nil, fmt.Errorf("%s:%d: base takes one scene name", filePath, lineNo)
			}
			base, ok := newBuiltin(fields[1])
			if !ok {
				return nil, fmt.Errorf("%s:%d: base must be a built-in scene: %w", filePath, lineNo, ErrUnknownScene)
			}
			s = base
			continue
		}
		directives = append(directives, fields)
		lines = append(lines, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: missing base directive", filePath)
	}

	for i, fields := range directives {
		if err := s.applyDirective(filepath.Dir(filePath), fields); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filePath, lines[i], err)
		}
	}

	s.Info = info
	return s, nil
}

func (s *Scene) applyDirective(dir string, fields []string) error {
	args := fields[1:]
	switch fields[0] {
	case "heightmap":
		if len(args) != 4 {
			return fmt.Errorf("heightmap: expected file, extent, low and high")
		}
		v, err := parseFloats(args[1:], 3)
		if err != nil {
			return fmt.Errorf("heightmap: %w", err)
		}
		if v[0] <= 0 || v[2] < v[1] {
			return fmt.Errorf("heightmap: extent must be positive and high at least low")
		}
		path := args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		hm, err := loaders.LoadHeightMap(path, loaders.DefaultMaxHeightMapSize)
		if err != nil {
			return fmt.Errorf("heightmap: %w", err)
		}
		// the shader shares the marcher, so swapping its field retargets both
		s.Field = hm.Field(v[0], v[1], v[2])
		s.Marcher.Field = s.Field
	case "camera":
		v, err := parseFloats(args, 6)
		if err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		dir := core.NewVec3(v[3], v[4], v[5])
		if dir.LengthSquared() == 0 {
			return fmt.Errorf("camera: direction must be non-zero")
		}
		s.Camera = renderer.Camera{
			Position:  core.NewVec3(v[0], v[1], v[2]),
			Direction: dir.Normalize(),
		}
	case "march":
		if len(args) != 2 {
			return fmt.Errorf("march: expected max steps and step size")
		}
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps <= 0 {
			return fmt.Errorf("march: invalid max steps %q", args[0])
		}
		v, err := parseFloats(args[1:], 1)
		if err != nil || v[0] <= 0 {
			return fmt.Errorf("march: invalid step size %q", args[1])
		}
		march, fog := s.March()
		march.MaxSteps = steps
		march.StepSize = v[0]
		s.SetMarch(march, fog)
	case "fog":
		v, err := parseFloats(args, 1)
		if err != nil || v[0] <= 0 {
			return fmt.Errorf("fog: expected a positive distance")
		}
		march, _ := s.March()
		s.SetMarch(march, v[0])
	case "size":
		if len(args) != 2 {
			return fmt.Errorf("size: expected width and height")
		}
		w, errW := strconv.Atoi(args[0])
		h, errH := strconv.Atoi(args[1])
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return fmt.Errorf("size: invalid dimensions %q x %q", args[0], args[1])
		}
		s.Width, s.Height = w, h
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

func parseFloats(args []string, n int) ([]float32, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(args))
	}
	values := make([]float32, n)
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", arg)
		}
		values[i] = float32(f)
	}
	return values, nil
}
