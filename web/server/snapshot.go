package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/df07/go-terrain-marcher/pkg/publish"
	"github.com/df07/go-terrain-marcher/pkg/renderer"
)

// SnapshotResponse describes a published snapshot
type SnapshotResponse struct {
	Key              string  `json:"key"`
	Location         string  `json:"location"`
	Scene            string  `json:"scene"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Bytes            int     `json:"bytes"`
	RenderMs         int64   `json:"renderMs"`
	AverageLuminance float64 `json:"averageLuminance"`
	Thumbnail        string  `json:"thumbnail,omitempty"` // Location of the scaled down copy
}

// ThumbnailWidth is the width of the preview published next to each snapshot
const ThumbnailWidth = 160

// handleSnapshot renders one full resolution frame and publishes it as a PNG
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "snapshot requires POST")
		return
	}
	if s.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return
	}

	req := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scene parameters: "+err.Error())
		return
	}
	sceneObj, err := s.createScene(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	frames := renderer.NewFrameRenderer(sceneObj.Shader, renderer.FrameConfig{NumWorkers: s.config.Workers}, nil)
	img, stats, err := frames.RenderImage(ctx, sceneObj.Camera, req.Width, req.Height)
	frames.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render failed: "+err.Error())
		return
	}

	data, err := encodePNG(img)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed: "+err.Error())
		return
	}

	key := publish.SnapshotKey(req.Scene, s.now())
	location, err := s.sink.Publish(ctx, key, data, "image/png")
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	response := SnapshotResponse{
		Key:              key,
		Location:         location,
		Scene:            req.Scene,
		Width:            req.Width,
		Height:           req.Height,
		Bytes:            len(data),
		RenderMs:         stats.Duration.Milliseconds(),
		AverageLuminance: stats.AverageLuminance,
	}

	if req.Width > ThumbnailWidth {
		thumb, err := encodePNG(renderer.Downscale(img, ThumbnailWidth))
		if err == nil {
			thumbKey := strings.TrimSuffix(key, ".png") + "_thumb.png"
			response.Thumbnail, err = s.sink.Publish(ctx, thumbKey, thumb, "image/png")
		}
		if err != nil {
			log.Printf("Snapshot %s published without thumbnail: %v", key, err)
		}
	}

	writeJSON(w, http.StatusCreated, response)
}
