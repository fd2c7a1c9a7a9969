package renderer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/shading"
)

// FrameConfig contains configuration for the frame driver
type FrameConfig struct {
	NumWorkers int // Number of parallel workers (0 = use CPU count)
}

// DefaultFrameConfig returns sensible default values
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		NumWorkers: 0, // Auto-detect CPU count
	}
}

// FrameRenderer fills frame buffers by shading every pixel through a persistent
// row worker pool. Frames are rendered one at a time.
type FrameRenderer struct {
	shader     shading.Shader
	config     FrameConfig
	workerPool *WorkerPool
	logger     core.Logger
	mu         sync.Mutex
	closed     bool
}

// NewFrameRenderer creates a frame renderer and starts its workers. Call Close to
// release them.
func NewFrameRenderer(shader shading.Shader, config FrameConfig, logger core.Logger) *FrameRenderer {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	pool := NewWorkerPool(shader, config.NumWorkers)
	pool.Start()

	return &FrameRenderer{
		shader:     shader,
		config:     config,
		workerPool: pool,
		logger:     logger,
	}
}

// Close waits for any frame in flight and stops the worker pool
func (fr *FrameRenderer) Close() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.closed = true
	fr.workerPool.Stop()
}

// NumWorkers returns the number of workers shading rows
func (fr *FrameRenderer) NumWorkers() int {
	return fr.workerPool.GetNumWorkers()
}

// RenderFrame shades every pixel of img from the camera. Rows are independent, so
// the result does not depend on the number of workers. Cancellation is checked
// per row; a cancelled frame returns the context error and a partially filled image.
func (fr *FrameRenderer) RenderFrame(ctx context.Context, camera Camera, img *image.RGBA) (FrameStats, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.closed {
		return FrameStats{}, fmt.Errorf("frame renderer is closed")
	}

	bounds := img.Bounds()
	height := bounds.Dy()
	stats := FrameStats{
		Width:   bounds.Dx(),
		Height:  height,
		Workers: fr.workerPool.GetNumWorkers(),
	}
	if height == 0 || bounds.Dx() == 0 {
		return stats, nil
	}

	startTime := time.Now()

	// Submit from a separate goroutine so the queues never need to hold a whole frame
	go func() {
		for j := 0; j < height; j++ {
			fr.workerPool.SubmitTask(RowTask{Ctx: ctx, Row: j, Camera: camera, Image: img})
		}
	}()

	var firstErr error
	for i := 0; i < height; i++ {
		result, ok := fr.workerPool.GetResult()
		if !ok {
			return stats, fmt.Errorf("worker pool closed unexpectedly")
		}
		if result.Error != nil {
			if firstErr == nil {
				firstErr = result.Error
			}
			continue
		}
		stats.Rows++
	}

	stats.Duration = time.Since(startTime)
	if firstErr != nil {
		fr.logger.Printf("Frame stopped after %d/%d rows: %v\n", stats.Rows, height, firstErr)
		return stats, firstErr
	}
	stats.AverageLuminance = CalculateAverageLuminance(img)
	return stats, nil
}

// RenderImage allocates a width x height frame and renders it
func (fr *FrameRenderer) RenderImage(ctx context.Context, camera Camera, width, height int) (*image.RGBA, FrameStats, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stats, err := fr.RenderFrame(ctx, camera, img)
	if err != nil {
		return nil, stats, err
	}
	return img, stats, nil
}

// RenderScaled renders at 1/scale of the requested resolution and upscales the
// result to width x height. A scale of 1 or less renders at full resolution.
func (fr *FrameRenderer) RenderScaled(ctx context.Context, camera Camera, width, height, scale int) (*image.RGBA, FrameStats, error) {
	if scale <= 1 {
		return fr.RenderImage(ctx, camera, width, height)
	}
	lowW, lowH := max(1, width/scale), max(1, height/scale)
	low, stats, err := fr.RenderImage(ctx, camera, lowW, lowH)
	if err != nil {
		return nil, stats, err
	}
	return Upscale(low, width, height), stats, nil
}
