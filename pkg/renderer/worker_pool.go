package renderer

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/df07/go-terrain-marcher/pkg/shading"
)

// RowTask represents one image row to be shaded by the worker pool
type RowTask struct {
	Ctx    context.Context
	Row    int
	Camera Camera
	Image  *image.RGBA // Shared frame buffer; each task writes only its own row
}

// RowResult reports a finished row
type RowResult struct {
	Row   int
	Error error
}

// WorkerPool manages parallel row rendering
type WorkerPool struct {
	taskQueue   chan RowTask
	resultQueue chan RowResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// Worker shades rows pulled from the task queue
type Worker struct {
	ID          int
	shader      shading.Shader
	taskQueue   chan RowTask
	resultQueue chan RowResult
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(shader shading.Shader, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	wp := &WorkerPool{
		taskQueue:   make(chan RowTask, numWorkers*4),
		resultQueue: make(chan RowResult, numWorkers*4),
		numWorkers:  numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		worker := &Worker{
			ID:          i,
			shader:      shader,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		}
		wp.workers = append(wp.workers, worker)
	}

	return wp
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.run(&wp.wg)
	}
}

// Stop gracefully shuts down all workers. It is safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
	})
}

// SubmitTask submits a row task to the worker pool
func (wp *WorkerPool) SubmitTask(task RowTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed row result
func (wp *WorkerPool) GetResult() (RowResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		if err := task.Ctx.Err(); err != nil {
			w.resultQueue <- RowResult{Row: task.Row, Error: err}
			continue
		}
		RenderRow(w.shader, task.Camera, task.Image, task.Row)
		w.resultQueue <- RowResult{Row: task.Row}
	}
}

// RenderRow shades every pixel of row j in img
func RenderRow(shader shading.Shader, camera Camera, img *image.RGBA, j int) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	for i := 0; i < width; i++ {
		dir := camera.PixelRay(i, j, width, height)
		img.SetRGBA(bounds.Min.X+i, bounds.Min.Y+j, shader.Shade(camera.Position, dir).ToRGBA())
	}
}
