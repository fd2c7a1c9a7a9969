package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/df07/go-terrain-marcher/pkg/config"
	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/publish"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
	"github.com/df07/go-terrain-marcher/pkg/scene"
)

// MinDimension is the smallest width or height a request may ask for
const MinDimension = 16

// Server handles web requests for the terrain viewer
type Server struct {
	config   *config.Config
	sink     publish.Sink
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewServer creates a new web server. A nil sink disables snapshots.
func NewServer(cfg *config.Config, sink publish.Sink) *Server {
	s := &Server{
		config: cfg,
		sink:   sink,
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RenderRequest represents the scene parameters shared by all endpoints
type RenderRequest struct {
	Scene  string           `json:"scene"`  // Scene id (e.g., "mountains" or "preset:mountain-pass")
	Width  int              `json:"width"`  // Image width
	Height int              `json:"height"` // Image height
	Passes int              `json:"passes"` // Progressive passes (render endpoint only)
	Camera *renderer.Camera `json:"camera"` // Optional camera override
}

// Handler returns the HTTP handler serving the viewer and its API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))

	// JSON endpoints are gzip compressed when the client accepts it
	mux.Handle("/api/health", gzhttp.GzipHandler(http.HandlerFunc(s.handleHealth)))
	mux.Handle("/api/scenes", gzhttp.GzipHandler(http.HandlerFunc(s.handleScenes)))
	mux.Handle("/api/scene-config", gzhttp.GzipHandler(http.HandlerFunc(s.handleSceneConfig)))
	mux.Handle("/api/inspect", gzhttp.GzipHandler(http.HandlerFunc(s.handleInspect)))
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)

	// Streaming endpoints
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/ws", s.handleLive)

	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Starting web server on http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenes lists built-in and preset scenes grouped for the scene picker
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	response, err := scene.ListAllScenes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSceneConfig returns the defaults of a scene and the request limits
func (s *Server) handleSceneConfig(w http.ResponseWriter, r *http.Request) {
	sceneName := r.URL.Query().Get("scene")
	if sceneName == "" {
		sceneName = s.config.DefaultScene
	}

	sceneObj, err := scene.New(sceneName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	march, fog := sceneObj.March()
	response := map[string]interface{}{
		"scene": sceneObj.Info,
		"defaults": map[string]interface{}{
			"width":       sceneObj.Width,
			"height":      sceneObj.Height,
			"camera":      sceneObj.Camera,
			"maxSteps":    march.MaxSteps,
			"stepSize":    march.StepSize,
			"fogDistance": fog,
			"passes":      renderer.DefaultProgressiveConfig().Passes,
			"renderScale": s.config.RenderScale,
		},
		"limits": map[string]interface{}{
			"width":  map[string]int{"min": MinDimension, "max": s.config.MaxDimension},
			"height": map[string]int{"min": MinDimension, "max": s.config.MaxDimension},
			"passes": map[string]int{"min": 1, "max": 6},
			"scale":  map[string]int{"min": 1, "max": 16},
		},
	}
	writeJSON(w, http.StatusOK, response)
}

// parseCommonSceneParams parses the scene, size and camera parameters shared by
// every endpoint. Size defaults come from the scene.
func (s *Server) parseCommonSceneParams(r *http.Request, req *RenderRequest) error {
	values := r.URL.Query()

	if sceneName := values.Get("scene"); sceneName != "" {
		req.Scene = sceneName
	} else {
		req.Scene = s.config.DefaultScene
	}

	defaultW, defaultH := scene.DefaultWidth, scene.DefaultHeight
	if sceneObj, err := scene.New(req.Scene); err == nil {
		defaultW, defaultH = sceneObj.Width, sceneObj.Height
	}
	defaultW = min(defaultW, s.config.MaxDimension)
	defaultH = min(defaultH, s.config.MaxDimension)

	var err error
	if req.Width, err = parseIntParam(values, "width", defaultW, MinDimension, s.config.MaxDimension); err != nil {
		return err
	}
	if req.Height, err = parseIntParam(values, "height", defaultH, MinDimension, s.config.MaxDimension); err != nil {
		return err
	}

	camera, err := parseCameraParams(values)
	if err != nil {
		return err
	}
	req.Camera = camera
	return nil
}

// parseCameraParams reads an optional camera from px,py,pz (position) and
// dx,dy,dz (facing). Missing components keep their default values.
func parseCameraParams(values url.Values) (*renderer.Camera, error) {
	keys := []string{"px", "py", "pz", "dx", "dy", "dz"}
	present := false
	for _, key := range keys {
		if values.Get(key) != "" {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	camera := renderer.DefaultCamera()
	defaults := []float64{
		float64(camera.Position.X), float64(camera.Position.Y), float64(camera.Position.Z),
		float64(camera.Direction.X), float64(camera.Direction.Y), float64(camera.Direction.Z),
	}
	parsed := make([]float32, len(keys))
	for i, key := range keys {
		v, err := parseFloatParam(values, key, defaults[i], -1e6, 1e6)
		if err != nil {
			return nil, err
		}
		parsed[i] = float32(v)
	}

	dir := core.NewVec3(parsed[3], parsed[4], parsed[5])
	if dir.LengthSquared() == 0 {
		return nil, errors.New("camera direction must be non-zero")
	}
	camera.Position = core.NewVec3(parsed[0], parsed[1], parsed[2])
	camera.Direction = dir.Normalize()
	return &camera, nil
}

// createScene creates the requested scene and applies any camera override
func (s *Server) createScene(req *RenderRequest) (*scene.Scene, error) {
	sceneObj, err := scene.New(req.Scene)
	if err != nil {
		return nil, err
	}
	if req.Camera != nil {
		sceneObj.Camera = *req.Camera
	}
	return sceneObj, nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// encodePNG encodes an image as PNG bytes
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
