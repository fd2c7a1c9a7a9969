package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/df07/go-terrain-marcher/pkg/config"
	"github.com/df07/go-terrain-marcher/pkg/publish"
	"github.com/df07/go-terrain-marcher/pkg/recording"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:            0,
		StaticDir:       t.TempDir(),
		DefaultScene:    "flat",
		Workers:         2,
		RenderScale:     2,
		MaxDimension:    config.DefaultMaxDimension,
		PingInterval:    time.Minute,
		MaxPayloadBytes: config.DefaultMaxPayloadBytes,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, sink publish.Sink) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(cfg, sink).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response from %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	var body map[string]string
	if status := getJSON(t, ts.URL+"/api/health", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body)
	}
}

func TestHandleScenes(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	var body struct {
		Groups []struct {
			Name   string `json:"name"`
			Scenes []struct {
				ID string `json:"id"`
			} `json:"scenes"`
		} `json:"groups"`
	}
	if status := getJSON(t, ts.URL+"/api/scenes", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(body.Groups) == 0 {
		t.Fatal("Expected at least one scene group")
	}

	ids := map[string]bool{}
	for _, g := range body.Groups {
		for _, s := range g.Scenes {
			ids[s.ID] = true
		}
	}
	for _, want := range []string{"mountains", "waves", "flat"} {
		if !ids[want] {
			t.Errorf("Expected scene %q in listing, got %v", want, ids)
		}
	}
}

func TestHandleSceneConfig(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	var body struct {
		Defaults struct {
			Width       int     `json:"width"`
			Height      int     `json:"height"`
			MaxSteps    int     `json:"maxSteps"`
			StepSize    float32 `json:"stepSize"`
			FogDistance float32 `json:"fogDistance"`
		} `json:"defaults"`
	}
	if status := getJSON(t, ts.URL+"/api/scene-config?scene=mountains", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body.Defaults.Width != 640 || body.Defaults.Height != 360 {
		t.Errorf("Expected 640x360 defaults, got %dx%d", body.Defaults.Width, body.Defaults.Height)
	}
	if body.Defaults.MaxSteps != 300 || body.Defaults.StepSize != 0.5 {
		t.Errorf("Expected march 300 x 0.5, got %d x %v", body.Defaults.MaxSteps, body.Defaults.StepSize)
	}
	if body.Defaults.FogDistance != 150 {
		t.Errorf("Expected fog distance 150, got %v", body.Defaults.FogDistance)
	}

	var errBody map[string]string
	if status := getJSON(t, ts.URL+"/api/scene-config?scene=nope", &errBody); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown scene, got %d", status)
	}
}

// readSSE returns the event names of a complete SSE stream
func readSSE(t *testing.T, body io.Reader) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read SSE stream: %v", err)
	}
	return events
}

func countEvents(events []string, name string) int {
	n := 0
	for _, e := range events {
		if e == name {
			n++
		}
	}
	return n
}

func TestHandleRender(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	resp, err := http.Get(ts.URL + "/api/render?scene=flat&width=32&height=16&passes=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	events := readSSE(t, resp.Body)
	if got := countEvents(events, "pass"); got != 2 {
		t.Errorf("Expected 2 pass events, got %d (%v)", got, events)
	}
	if len(events) == 0 || events[len(events)-1] != "complete" {
		t.Errorf("Expected stream to end with complete, got %v", events)
	}
	if got := countEvents(events, "error"); got != 0 {
		t.Errorf("Expected no errors, got %v", events)
	}
}

func TestHandleRender_InvalidParams(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	tests := []struct {
		name  string
		query string
	}{
		{"too many passes", "scene=flat&passes=9"},
		{"width too small", "scene=flat&width=4"},
		{"unknown scene", "scene=nope&width=32&height=16"},
		{"zero camera direction", "scene=flat&dx=0&dy=0&dz=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/render?" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			events := readSSE(t, resp.Body)
			if countEvents(events, "error") != 1 {
				t.Errorf("Expected one error event, got %v", events)
			}
			if countEvents(events, "pass") != 0 {
				t.Errorf("Expected no passes, got %v", events)
			}
		})
	}
}

func TestHandleInspect(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	var hit InspectResponse
	if status := getJSON(t, ts.URL+"/api/inspect?scene=flat&width=32&height=16&x=16&y=15", &hit); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if !hit.Hit {
		t.Fatal("Expected the bottom row to hit the ground")
	}
	if hit.ShaderType != "terrain" {
		t.Errorf("Expected terrain shader, got %q", hit.ShaderType)
	}
	if hit.Normal != [3]float32{0, 0, 1} {
		t.Errorf("Expected normal (0,0,1) on flat ground, got %v", hit.Normal)
	}
	if hit.Point[2] > 0 {
		t.Errorf("Expected hit point at or below the surface, got z=%v", hit.Point[2])
	}
	if hit.Evaluations == 0 || len(hit.StepSizes) == 0 {
		t.Errorf("Expected a trace, got %d evaluations and %v", hit.Evaluations, hit.StepSizes)
	}
	if hit.Properties["band"] != "grass" {
		t.Errorf("Expected grass band at elevation zero, got %v", hit.Properties["band"])
	}

	var miss InspectResponse
	if status := getJSON(t, ts.URL+"/api/inspect?scene=flat&width=32&height=16&x=16&y=0", &miss); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if miss.Hit {
		t.Error("Expected the top row to miss")
	}
	if miss.Color == "" {
		t.Error("Expected the sky color for a miss")
	}
}

func TestHandleInspect_BadCoordinates(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)

	for _, query := range []string{
		"x=32&y=0",
		"x=0&y=-1",
		"x=abc&y=0",
		"y=0",
	} {
		var body map[string]string
		status := getJSON(t, ts.URL+"/api/inspect?scene=flat&width=32&height=16&"+query, &body)
		if status != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, status)
		}
		if body["error"] == "" {
			t.Errorf("%s: expected an error message", query)
		}
	}
}

func TestHandleSnapshot(t *testing.T) {
	root := t.TempDir()
	ts := newTestServer(t, testConfig(t), publish.DirSink{Root: root})

	resp, err := http.Post(ts.URL+"/api/snapshot?scene=flat&width=32&height=16", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var body SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(body.Key, "snapshots/flat/") {
		t.Errorf("Unexpected key %q", body.Key)
	}

	data, err := os.ReadFile(body.Location)
	if err != nil {
		t.Fatalf("Expected snapshot on disk: %v", err)
	}
	if len(data) != body.Bytes {
		t.Errorf("Expected %d bytes, file has %d", body.Bytes, len(data))
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Snapshot is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
		t.Errorf("Expected 32x16 snapshot, got %v", b)
	}
}

func TestHandleSnapshot_Thumbnail(t *testing.T) {
	ts := newTestServer(t, testConfig(t), publish.DirSink{Root: t.TempDir()})

	resp, err := http.Post(ts.URL+"/api/snapshot?scene=flat&width=320&height=180", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var body SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(body.Thumbnail, "_thumb.png") {
		t.Fatalf("Expected a thumbnail location, got %q", body.Thumbnail)
	}

	f, err := os.Open(body.Thumbnail)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Thumbnail is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != ThumbnailWidth || b.Dy() != 90 {
		t.Errorf("Expected %dx90 thumbnail, got %v", ThumbnailWidth, b)
	}
}

func TestHandleSnapshot_Rejected(t *testing.T) {
	t.Run("GET", func(t *testing.T) {
		ts := newTestServer(t, testConfig(t), publish.DirSink{Root: t.TempDir()})
		resp, err := http.Get(ts.URL + "/api/snapshot")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Allow") != http.MethodPost {
			t.Errorf("Expected Allow: POST, got %q", resp.Header.Get("Allow"))
		}
	})

	t.Run("no sink", func(t *testing.T) {
		ts := newTestServer(t, testConfig(t), nil)
		resp, err := http.Post(ts.URL+"/api/snapshot", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", resp.StatusCode)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		ts := newTestServer(t, testConfig(t), failingSink{})
		resp, err := http.Post(ts.URL+"/api/snapshot?scene=flat&width=16&height=16", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d", resp.StatusCode)
		}
	})
}

type failingSink struct{}

func (failingSink) Publish(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func dialLive(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	return conn
}

// readFrame reads one frame announcement and its PNG payload
func readFrame(t *testing.T, conn *websocket.Conn) (ServerMessage, int, int) {
	t.Helper()
	var meta ServerMessage
	if err := conn.ReadJSON(&meta); err != nil {
		t.Fatalf("Failed to read frame message: %v", err)
	}
	if meta.Type != "frame" {
		t.Fatalf("Expected frame message, got %+v", meta)
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame payload: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("Expected binary payload, got message type %d", kind)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Frame payload is not a PNG: %v", err)
	}
	return meta, img.Bounds().Dx(), img.Bounds().Dy()
}

func TestHandleLive(t *testing.T) {
	ts := newTestServer(t, testConfig(t), nil)
	conn := dialLive(t, ts, "scene=flat&width=32&height=16&scale=2")

	var hello ServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != "hello" || hello.SessionID == "" {
		t.Fatalf("Unexpected hello %+v", hello)
	}
	if hello.Width != 32 || hello.Height != 16 || hello.Scene != "flat" {
		t.Errorf("Unexpected hello dimensions %+v", hello)
	}

	first, w, h := readFrame(t, conn)
	if first.Index != 0 {
		t.Errorf("Expected first frame index 0, got %d", first.Index)
	}
	if w != 32 || h != 16 {
		t.Errorf("Expected full size 32x16 frame, got %dx%d", w, h)
	}

	msg := ClientMessage{Type: "input"}
	msg.Input.Forward = 2
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatal(err)
	}
	second, _, _ := readFrame(t, conn)
	if second.Index != 1 {
		t.Errorf("Expected second frame index 1, got %d", second.Index)
	}
	if second.Camera == nil || second.Camera.Position.Y <= first.Camera.Position.Y {
		t.Errorf("Expected the camera to move forward, got %+v then %+v", first.Camera, second.Camera)
	}

	if err := conn.WriteJSON(ClientMessage{Type: "reset"}); err != nil {
		t.Fatal(err)
	}
	third, _, _ := readFrame(t, conn)
	if third.Camera == nil || *third.Camera != *hello.Camera {
		t.Errorf("Expected reset to restore %+v, got %+v", hello.Camera, third.Camera)
	}
}

func TestHandleLive_Recording(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordDir = t.TempDir()
	ts := newTestServer(t, cfg, nil)
	conn := dialLive(t, ts, "scene=flat&width=16&height=16&scale=1")

	var hello ServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)
	msg := ClientMessage{Type: "input"}
	msg.Input.Yaw = 0.1
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	// The recording is finalized when the handler returns
	var dir string
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(cfg.RecordDir)
		if err == nil && len(entries) == 1 {
			candidate := cfg.RecordDir + "/" + entries[0].Name()
			if r, err := recording.OpenReader(candidate); err == nil {
				done := r.Manifest().FrameCount == 2
				r.Close()
				if done {
					dir = candidate
					break
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if dir == "" {
		t.Fatal("Expected a finalized recording with two frames")
	}

	r, err := recording.OpenReader(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if m := r.Manifest(); m.SessionID != hello.SessionID || m.Scene != "flat" {
		t.Errorf("Unexpected manifest %+v", m)
	}
	events, err := r.CameraEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("Expected one camera event, got %d", len(events))
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedOrigins = []string{"http://viewer.example"}
	s := NewServer(cfg, nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://viewer.example", true},
		{"http://other.example", false},
		{"", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	open := NewServer(testConfig(t), nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	if !open.checkOrigin(r) {
		t.Error("Expected every origin to be accepted without an allow list")
	}
}
