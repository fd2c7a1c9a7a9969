package recording

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/df07/go-terrain-marcher/pkg/renderer"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	manifestName = "manifest.json"
	eventsName   = "events.jsonl.sz"
	framesName   = "frames.bin.zst"

	// frameHeaderSize is index, capture time, width, height and payload length
	frameHeaderSize = 8 + 8 + 4 + 4 + 4
)

// Manifest describes a recorded viewer session so tooling can locate its files
type Manifest struct {
	Version    int    `json:"version"`
	SessionID  string `json:"session_id"`
	Scene      string `json:"scene,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	CreatedAt  string `json:"created_at"`
	FrameCount int    `json:"frame_count"`
	EventsPath string `json:"events_path"`
	FramesPath string `json:"frames_path"`
}

// CameraEvent is one line of the camera log
type CameraEvent struct {
	Index      uint64          `json:"index"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Camera     renderer.Camera `json:"camera"`
	Input      renderer.Input  `json:"input"`
}

// Writer streams the frames and camera moves of a live session to disk. Frames go
// to a zstd stream and camera events to a snappy-framed JSON lines log.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	manifest    Manifest
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	closed      bool
}

// NewWriter prepares the session directory under root and opens compressed sinks
func NewWriter(root, sessionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("recording root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := sessionCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(path, framesName))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	w := &Writer{
		dir: path,
		now: clock,
		manifest: Manifest{
			Version:    1,
			SessionID:  sessionID,
			CreatedAt:  created.Format(time.RFC3339Nano),
			EventsPath: eventsName,
			FramesPath: framesName,
		},
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}

	if err := w.writeManifestLocked(); err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return w, w.manifest, nil
}

// Directory exposes the directory backing the recording
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetScene records which scene and frame size the session uses
func (w *Writer) SetScene(scene string, width, height int) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.manifest.Scene = scene
	w.manifest.Width = width
	w.manifest.Height = height
	w.mu.Unlock()
}

// AppendCamera writes the camera after an input was applied to the event log
func (w *Writer) AppendCamera(index uint64, camera renderer.Camera, input renderer.Input) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	line, err := json.Marshal(CameraEvent{
		Index:      index,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       "camera",
		Camera:     camera,
		Input:      input,
	})
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame writes a length-prefixed raw RGBA frame to the frame stream
func (w *Writer) AppendFrame(index uint64, img *image.RGBA) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], index)
	binary.LittleEndian.PutUint64(header[8:16], uint64(captured.UnixNano()))
	binary.LittleEndian.PutUint32(header[16:20], uint32(width))
	binary.LittleEndian.PutUint32(header[20:24], uint32(height))
	binary.LittleEndian.PutUint32(header[24:28], uint32(width*height*4))
	if _, err := w.frameStream.Write(header); err != nil {
		return err
	}
	// rows are written tightly packed regardless of the source stride
	for y := 0; y < height; y++ {
		start := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		if _, err := w.frameStream.Write(img.Pix[start : start+width*4]); err != nil {
			return err
		}
	}
	w.manifest.FrameCount++
	return nil
}

// Close flushes all buffers, rewrites the manifest and releases file handles
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.writeManifestLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (w *Writer) writeManifestLocked() error {
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.dir, manifestName), data, 0o644)
}
