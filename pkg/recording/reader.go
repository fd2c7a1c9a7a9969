package recording

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// maxFrameBytes rejects corrupt headers before allocating
const maxFrameBytes = 1 << 28

// Frame is one decoded frame of a recording
type Frame struct {
	Index      uint64
	CapturedAt time.Time
	Image      *image.RGBA
}

// Reader streams a recorded session back from disk
type Reader struct {
	dir       string
	manifest  Manifest
	frameFile *os.File
	frames    *zstd.Decoder
}

// OpenReader opens the recording stored in dir
func OpenReader(dir string) (*Reader, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	frameFile, err := os.Open(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}
	frames, err := zstd.NewReader(frameFile)
	if err != nil {
		frameFile.Close()
		return nil, err
	}

	return &Reader{dir: dir, manifest: manifest, frameFile: frameFile, frames: frames}, nil
}

// Manifest returns the session manifest
func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// NextFrame decodes the next frame. It returns io.EOF after the last frame.
func (r *Reader) NextFrame() (Frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r.frames, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("truncated frame header: %w", err)
		}
		return Frame{}, err
	}

	index := binary.LittleEndian.Uint64(header[0:8])
	captured := int64(binary.LittleEndian.Uint64(header[8:16]))
	width := int(binary.LittleEndian.Uint32(header[16:20]))
	height := int(binary.LittleEndian.Uint32(header[20:24]))
	size := int(binary.LittleEndian.Uint32(header[24:28]))
	if size != width*height*4 || size > maxFrameBytes {
		return Frame{}, fmt.Errorf("frame %d: invalid payload size %d for %dx%d", index, size, width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if _, err := io.ReadFull(r.frames, img.Pix); err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w", index, err)
	}

	return Frame{Index: index, CapturedAt: time.Unix(0, captured).UTC(), Image: img}, nil
}

// CameraEvents reads the whole camera log
func (r *Reader) CameraEvents() ([]CameraEvent, error) {
	file, err := os.Open(filepath.Join(r.dir, r.manifest.EventsPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []CameraEvent
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event CameraEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("parse camera event: %w", err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

// Close releases the frame stream
func (r *Reader) Close() error {
	r.frames.Close()
	return r.frameFile.Close()
}
