package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/recording"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
	"github.com/df07/go-terrain-marcher/pkg/scene"
)

const writeWait = 10 * time.Second

// ClientMessage is a control message sent by the live viewer
type ClientMessage struct {
	Type   string           `json:"type"` // "input", "camera" or "reset"
	Input  renderer.Input   `json:"input"`
	Camera *renderer.Camera `json:"camera,omitempty"`
}

// ServerMessage is a text message sent to the live viewer. Each "frame" message is
// followed by one binary message holding the frame as PNG.
type ServerMessage struct {
	Type      string           `json:"type"` // "hello", "frame" or "error"
	SessionID string           `json:"sessionId,omitempty"`
	Scene     string           `json:"scene,omitempty"`
	Width     int              `json:"width,omitempty"`
	Height    int              `json:"height,omitempty"`
	Scale     int              `json:"scale,omitempty"`
	Index     uint64           `json:"index"`
	Camera    *renderer.Camera `json:"camera,omitempty"`
	RenderMs  int64            `json:"renderMs,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// liveSession is one connected viewer with its own camera and worker pool
type liveSession struct {
	id       string
	conn     *websocket.Conn
	scene    *scene.Scene
	camera   renderer.Camera
	width    int
	height   int
	scale    int
	frames   *renderer.FrameRenderer
	recorder *recording.Writer
	logger   core.Logger
	index    uint64
}

// checkOrigin accepts every origin unless an allow list is configured
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// handleLive upgrades to a websocket and renders a frame for every batch of
// camera input received
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	req := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scene parameters: "+err.Error())
		return
	}
	scale, err := parseIntParam(r.URL.Query(), "scale", s.config.RenderScale, 1, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sceneObj, err := s.createScene(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	logger := NewWebLogger("live-"+id, nil)
	session := &liveSession{
		id:     id,
		conn:   conn,
		scene:  sceneObj,
		camera: sceneObj.Camera,
		width:  req.Width,
		height: req.Height,
		scale:  scale,
		frames: renderer.NewFrameRenderer(sceneObj.Shader, renderer.FrameConfig{NumWorkers: s.config.Workers}, logger),
		logger: logger,
	}
	defer session.frames.Close()

	if s.config.RecordDir != "" {
		recorder, _, err := recording.NewWriter(s.config.RecordDir, id, s.now)
		if err != nil {
			logger.Printf("Warning: recording disabled: %v\n", err)
		} else {
			recorder.SetScene(req.Scene, req.Width, req.Height)
			session.recorder = recorder
			defer func() {
				if err := recorder.Close(); err != nil {
					logger.Printf("Error closing recording: %v\n", err)
				}
			}()
		}
	}

	logger.Printf("Live session started: %s %dx%d at 1/%d scale\n", req.Scene, req.Width, req.Height, scale)
	s.runLiveSession(session)
	logger.Printf("Live session ended after %d frames\n", session.index)
}

// runLiveSession drives a connected session until the client goes away
func (s *Server) runLiveSession(session *liveSession) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := session.conn
	conn.SetReadLimit(s.config.MaxPayloadBytes)
	pongWait := 2 * s.config.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// reader
	messages := make(chan ClientMessage, 32)
	go func() {
		defer close(messages)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					session.logger.Printf("Warning: read error: %v\n", err)
				}
				return
			}
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				session.logger.Printf("Warning: ignoring malformed message: %v\n", err)
				continue
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	// keepalive; WriteControl may run concurrently with the frame writer
	go func() {
		ticker := time.NewTicker(s.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	hello := ServerMessage{
		Type:      "hello",
		SessionID: session.id,
		Scene:     session.scene.Info.ID,
		Width:     session.width,
		Height:    session.height,
		Scale:     session.scale,
		Camera:    &session.camera,
	}
	if err := session.writeJSON(hello); err != nil {
		return
	}
	if err := session.renderAndSend(ctx); err != nil {
		return
	}

	for msg := range messages {
		session.apply(msg)
		// coalesce everything already queued into one frame
	drain:
		for {
			select {
			case next, ok := <-messages:
				if !ok {
					return
				}
				session.apply(next)
			default:
				break drain
			}
		}
		if err := session.renderAndSend(ctx); err != nil {
			return
		}
	}
}

// apply updates the camera from one client message and records the move
func (ls *liveSession) apply(msg ClientMessage) {
	switch msg.Type {
	case "input", "":
		ls.camera.Apply(msg.Input)
	case "camera":
		if msg.Camera == nil || msg.Camera.Direction.LengthSquared() == 0 {
			ls.logger.Printf("Warning: ignoring camera message without a direction\n")
			return
		}
		ls.camera = *msg.Camera
		ls.camera.Direction = ls.camera.Direction.Normalize()
	case "reset":
		ls.camera = ls.scene.Camera
	default:
		ls.logger.Printf("Warning: unknown message type %q\n", msg.Type)
		return
	}

	if ls.recorder != nil {
		if err := ls.recorder.AppendCamera(ls.index, ls.camera, msg.Input); err != nil {
			ls.logger.Printf("Error recording camera: %v\n", err)
		}
	}
}

// renderAndSend renders the current camera view and writes it to the client
func (ls *liveSession) renderAndSend(ctx context.Context) error {
	img, stats, err := ls.frames.RenderScaled(ctx, ls.camera, ls.width, ls.height, ls.scale)
	if err != nil {
		return err
	}

	if ls.recorder != nil {
		if err := ls.recorder.AppendFrame(ls.index, img); err != nil {
			ls.logger.Printf("Error recording frame: %v\n", err)
		}
	}

	data, err := encodePNG(img)
	if err != nil {
		_ = ls.writeJSON(ServerMessage{Type: "error", Error: err.Error()})
		return err
	}

	camera := ls.camera
	meta := ServerMessage{
		Type:     "frame",
		Index:    ls.index,
		Camera:   &camera,
		RenderMs: stats.Duration.Milliseconds(),
	}
	if err := ls.writeJSON(meta); err != nil {
		return err
	}
	_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ls.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	ls.index++
	return nil
}

func (ls *liveSession) writeJSON(msg ServerMessage) error {
	_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ls.conn.WriteJSON(msg)
}
