package renderer

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/shading"
)

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

// ProgressiveConfig contains configuration for progressive preview rendering
type ProgressiveConfig struct {
	Passes     int // Number of passes; each pass doubles the resolution, the last is full size
	NumWorkers int // Number of parallel workers (0 = use CPU count)
}

// DefaultProgressiveConfig returns sensible default values
func DefaultProgressiveConfig() ProgressiveConfig {
	return ProgressiveConfig{
		Passes:     3, // 1/4, 1/2, then full resolution
		NumWorkers: 0,
	}
}

// ProgressiveRenderer renders a quick low resolution preview first and refines it
// over several passes
type ProgressiveRenderer struct {
	width, height int
	config        ProgressiveConfig
	frames        *FrameRenderer
	logger        core.Logger
}

// NewProgressiveRenderer creates a new progressive renderer
func NewProgressiveRenderer(shader shading.Shader, width, height int, config ProgressiveConfig, logger core.Logger) *ProgressiveRenderer {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	if config.Passes <= 0 {
		config.Passes = 1
	}
	return &ProgressiveRenderer{
		width:  width,
		height: height,
		config: config,
		frames: NewFrameRenderer(shader, FrameConfig{NumWorkers: config.NumWorkers}, logger),
		logger: logger,
	}
}

// getScaleForPass returns the downscale factor for a pass (1-based)
func (pr *ProgressiveRenderer) getScaleForPass(passNumber int) int {
	remaining := pr.config.Passes - passNumber
	if remaining <= 0 {
		return 1
	}
	return 1 << remaining
}

// PassResult contains the result of a single pass
type PassResult struct {
	PassNumber int
	Scale      int         // Downscale factor this pass was rendered at
	Image      *image.RGBA // Always full size; lower passes are upscaled
	Stats      FrameStats
	IsLast     bool
}

// RenderPass renders a single pass at that pass's scale
func (pr *ProgressiveRenderer) RenderPass(ctx context.Context, camera Camera, passNumber int) (PassResult, error) {
	scale := pr.getScaleForPass(passNumber)
	img, stats, err := pr.frames.RenderScaled(ctx, camera, pr.width, pr.height, scale)
	if err != nil {
		return PassResult{}, err
	}
	return PassResult{
		PassNumber: passNumber,
		Scale:      scale,
		Image:      img,
		Stats:      stats,
		IsLast:     passNumber >= pr.config.Passes,
	}, nil
}

// RenderProgressive renders all passes in the background and streams them on the
// returned channel. The error channel receives at most one error and is closed
// when rendering stops. The worker pool is released when the last pass is sent.
func (pr *ProgressiveRenderer) RenderProgressive(ctx context.Context, camera Camera) (<-chan PassResult, <-chan error) {
	passChan := make(chan PassResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(passChan)
		defer close(errChan)
		defer pr.frames.Close()

		pr.logger.Printf("Starting progressive rendering with %d passes (using %d workers)...\n",
			pr.config.Passes, pr.frames.NumWorkers())

		for pass := 1; pass <= pr.config.Passes; pass++ {
			select {
			case <-ctx.Done():
				pr.logger.Printf("Rendering cancelled before pass %d\n", pass)
				errChan <- ctx.Err()
				return
			default:
			}

			startTime := time.Now()
			result, err := pr.RenderPass(ctx, camera, pass)
			if err != nil {
				errChan <- err
				return
			}

			pr.logger.Printf("Pass %d completed in %v (1/%d scale, %dx%d shaded)\n",
				pass, time.Since(startTime), result.Scale, result.Stats.Width, result.Stats.Height)

			select {
			case passChan <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return passChan, errChan
}
