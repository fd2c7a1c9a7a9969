package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
)

// PassUpdate is sent via SSE when a progressive pass completes
type PassUpdate struct {
	PassNumber       int     `json:"passNumber"`
	TotalPasses      int     `json:"totalPasses"`
	Scale            int     `json:"scale"`
	ImageData        string  `json:"imageData"` // Base64 encoded PNG
	ShadedWidth      int     `json:"shadedWidth"`
	ShadedHeight     int     `json:"shadedHeight"`
	AverageLuminance float64 `json:"averageLuminance"`
	PixelsPerSecond  float64 `json:"pixelsPerSecond"`
	ElapsedMs        int64   `json:"elapsedMs"`
	IsComplete       bool    `json:"isComplete"`
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "pass", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// handleRender handles progressive rendering requests, streaming each pass via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.setSSEHeaders(w)

	ctx := r.Context()
	renderCtx, cancelRender := context.WithCancel(ctx)

	// A single goroutine owns the response writer
	sseEventChan := make(chan SSEEvent, 100)
	writerDone := make(chan struct{})
	go func() {
		s.writeSSEEvents(w, ctx, sseEventChan)
		close(writerDone)
	}()

	var consoleWG sync.WaitGroup
	defer func() {
		cancelRender()
		consoleWG.Wait()
		close(sseEventChan)
		<-writerDone
	}()

	req := &RenderRequest{}
	if err := s.parseRenderRequest(r, req); err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	sceneObj, err := s.createScene(req)
	if err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	consoleChan, webLogger := s.setupConsoleLogging()
	consoleWG.Add(1)
	go func() {
		defer consoleWG.Done()
		s.streamConsoleMessages(renderCtx, consoleChan, sseEventChan)
	}()

	config := renderer.ProgressiveConfig{
		Passes:     req.Passes,
		NumWorkers: s.config.Workers,
	}
	progressive := renderer.NewProgressiveRenderer(sceneObj.Shader, req.Width, req.Height, config, webLogger)

	startTime := time.Now()
	passChan, errChan := progressive.RenderProgressive(renderCtx, sceneObj.Camera)

	for passChan != nil || errChan != nil {
		select {
		case passResult, ok := <-passChan:
			if !ok {
				passChan = nil
				continue
			}
			s.handlePassComplete(ctx, sseEventChan, passResult, req, startTime)

		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			if err != nil {
				s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
				return
			}

		case <-ctx.Done():
			// Client disconnected
			return
		}
	}

	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: "Rendering completed"}:
	case <-ctx.Done():
	}
}

// parseRenderRequest parses the render endpoint's parameters
func (s *Server) parseRenderRequest(r *http.Request, req *RenderRequest) error {
	if err := s.parseCommonSceneParams(r, req); err != nil {
		return err
	}

	var err error
	if req.Passes, err = parseIntParam(r.URL.Query(), "passes", renderer.DefaultProgressiveConfig().Passes, 1, 6); err != nil {
		return err
	}

	if req.Width*req.Height > 1920*1080 {
		log.Printf("Render warning: %dx%d frame may render slowly", req.Width, req.Height)
	}
	return nil
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// setupConsoleLogging creates console channel and web logger for a render
func (s *Server) setupConsoleLogging() (chan ConsoleMessage, core.Logger) {
	consoleChan := make(chan ConsoleMessage, 50)
	renderID := "render-" + uuid.New().String()
	webLogger := NewWebLogger(renderID, consoleChan)
	return consoleChan, webLogger
}

// writeSSEEvents writes all SSE events from a single goroutine until the channel
// is closed. Events arriving after the client has gone are drained and dropped.
func (s *Server) writeSSEEvents(w http.ResponseWriter, ctx context.Context, sseEventChan chan SSEEvent) {
	for event := range sseEventChan {
		if ctx.Err() != nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
			continue
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

// streamConsoleMessages forwards logger output as console events until ctx ends
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan chan ConsoleMessage, sseEventChan chan SSEEvent) {
	for {
		select {
		case consoleMsg := <-consoleChan:
			data, err := json.Marshal(consoleMsg)
			if err != nil {
				log.Printf("Error marshaling console message: %v", err)
				continue
			}

			select {
			case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip message to avoid blocking
			}

		case <-ctx.Done():
			return
		}
	}
}

// handlePassComplete encodes a finished pass and sends it to the client
func (s *Server) handlePassComplete(ctx context.Context, sseEventChan chan SSEEvent, passResult renderer.PassResult, req *RenderRequest, startTime time.Time) {
	if ctx.Err() != nil {
		return
	}

	imageData, err := imageToBase64PNG(passResult.Image)
	if err != nil {
		log.Printf("Error encoding pass %d: %v", passResult.PassNumber, err)
		return
	}

	update := PassUpdate{
		PassNumber:       passResult.PassNumber,
		TotalPasses:      req.Passes,
		Scale:            passResult.Scale,
		ImageData:        imageData,
		ShadedWidth:      passResult.Stats.Width,
		ShadedHeight:     passResult.Stats.Height,
		AverageLuminance: passResult.Stats.AverageLuminance,
		PixelsPerSecond:  passResult.Stats.PixelsPerSecond(),
		ElapsedMs:        time.Since(startTime).Milliseconds(),
		IsComplete:       passResult.IsLast,
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshaling pass update: %v", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "pass", Data: string(data)}:
	case <-ctx.Done():
	}
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}
