package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/df07/go-terrain-marcher/pkg/config"
	"github.com/df07/go-terrain-marcher/pkg/recording"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
	"github.com/df07/go-terrain-marcher/pkg/scene"
)

// options holds the parsed command line
type options struct {
	Scene   string
	Width   int // 0 = scene default
	Height  int // 0 = scene default
	Workers int
	Scale   int
	Frames  int
	Fly     renderer.Input // Applied to the camera between frames
	Record  string         // Recording root, empty to disable
	Out     string         // Output directory, empty for output/<scene>
}

func main() {
	opts := options{}
	flag.StringVar(&opts.Scene, "scene", config.DefaultScene, "Scene id: 'mountains', 'waves', 'flat' or 'preset:<name>'")
	flag.IntVar(&opts.Width, "width", 0, "Image width (0 = scene default)")
	flag.IntVar(&opts.Height, "height", 0, "Image height (0 = scene default)")
	flag.IntVar(&opts.Workers, "workers", 0, "Number of parallel workers (0 = CPU count)")
	flag.IntVar(&opts.Scale, "scale", 1, "Render at 1/scale resolution and upscale")
	flag.IntVar(&opts.Frames, "frames", 1, "Number of frames to render")
	fly := flag.Float64("fly", 1, "Units to move forward between frames")
	yaw := flag.Float64("yaw", 0, "Radians to turn left between frames")
	flag.StringVar(&opts.Record, "record", "", "Also record the run as a session under this directory")
	flag.StringVar(&opts.Out, "out", "", "Output directory (default output/<scene>)")
	help := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *help {
		fmt.Println("Terrain Marcher")
		fmt.Println("Usage: terrain-marcher [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Available scenes:")
		for _, info := range scene.ListBuiltinScenes() {
			fmt.Printf("  %-10s - %s\n", info.ID, info.Description)
		}
		if presets, err := scene.ListPresetScenes(); err == nil {
			for _, info := range presets {
				fmt.Printf("  %s - %s\n", info.ID, info.Description)
			}
		}
		fmt.Println()
		fmt.Println("Output will be saved to output/<scene>/render_<timestamp>.png")
		return
	}
	opts.Fly = renderer.Input{Forward: float32(*fly), Yaw: float32(*yaw)}

	fmt.Println("Starting Terrain Marcher...")
	files, err := run(context.Background(), opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Printf("Render saved as %s\n", f)
	}
}

// run renders the requested frames and returns the written file names
func run(ctx context.Context, opts options) ([]string, error) {
	if opts.Frames < 1 {
		return nil, fmt.Errorf("frames must be at least 1, got %d", opts.Frames)
	}
	if opts.Scale < 1 {
		return nil, fmt.Errorf("scale must be at least 1, got %d", opts.Scale)
	}

	selectedScene, err := createScene(opts.Scene)
	if err != nil {
		return nil, err
	}
	width, height := selectedScene.Width, selectedScene.Height
	if opts.Width > 0 {
		width = opts.Width
	}
	if opts.Height > 0 {
		height = opts.Height
	}

	outputDir := opts.Out
	if outputDir == "" {
		outputDir = createOutputDir(opts.Scene)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}

	var recorder *recording.Writer
	if opts.Record != "" {
		recorder, _, err = recording.NewWriter(opts.Record, "cli-"+uuid.New().String(), time.Now)
		if err != nil {
			return nil, err
		}
		recorder.SetScene(opts.Scene, width, height)
		defer recorder.Close()
	}

	frames := renderer.NewFrameRenderer(selectedScene.Shader, renderer.FrameConfig{NumWorkers: opts.Workers}, nil)
	defer frames.Close()

	fmt.Printf("Rendering %s at %dx%d (1/%d scale, %d workers)...\n",
		selectedScene.Info.ID, width, height, opts.Scale, frames.NumWorkers())

	timestamp := time.Now().Format("20060102_150405")
	camera := selectedScene.Camera
	var written []string
	for i := 0; i < opts.Frames; i++ {
		if i > 0 {
			camera.Apply(opts.Fly)
			if recorder != nil {
				if err := recorder.AppendCamera(uint64(i), camera, opts.Fly); err != nil {
					return written, err
				}
			}
		}

		img, stats, err := frames.RenderScaled(ctx, camera, width, height, opts.Scale)
		if err != nil {
			return written, err
		}
		fmt.Printf("Frame %d completed in %v (%.0f pixels/s)\n", i, stats.Duration, stats.PixelsPerSecond())

		if recorder != nil {
			if err := recorder.AppendFrame(uint64(i), img); err != nil {
				return written, err
			}
		}

		name := fmt.Sprintf("render_%s.png", timestamp)
		if opts.Frames > 1 {
			name = fmt.Sprintf("render_%s_%04d.png", timestamp, i)
		}
		filename := filepath.Join(outputDir, name)
		if err := savePNG(filename, img); err != nil {
			return written, err
		}
		written = append(written, filename)
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return written, err
		}
		fmt.Printf("Session recorded in %s\n", recorder.Directory())
	}
	return written, nil
}

// createScene creates a built-in or preset scene by id
func createScene(sceneType string) (*scene.Scene, error) {
	if sceneType == "" {
		return nil, errors.New("no scene given")
	}
	return scene.New(sceneType)
}

// createOutputDir returns output/<name> for a scene id, dropping any preset prefix
func createOutputDir(sceneType string) string {
	name := strings.TrimPrefix(sceneType, "preset:")
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "scene"
	}
	return filepath.Join("output", name)
}

func savePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("error saving PNG: %w", err)
	}
	return file.Close()
}
