package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/df07/go-terrain-marcher/pkg/config"
)

// Sink stores a published artifact and returns where it can be found
type Sink interface {
	Publish(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

var keyCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SnapshotKey builds a unique object key for a snapshot of a scene:
// snapshots/<scene>/<yyyy-mm-dd>/<uuid>.png
func SnapshotKey(scene string, now time.Time) string {
	cleaned := keyCleaner.ReplaceAllString(scene, "-")
	if cleaned == "" || cleaned == "-" {
		cleaned = "scene"
	}
	return path.Join("snapshots", cleaned, now.UTC().Format("2006-01-02"), uuid.New().String()+".png")
}

// DirSink writes artifacts below a local directory
type DirSink struct {
	Root string
}

// Publish implements Sink. The returned location is the written file path.
func (d DirSink) Publish(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	local := filepath.FromSlash(key)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid key %q", key)
	}

	target := filepath.Join(d.Root, local)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return target, nil
}

// FromConfig returns the sink selected by the snapshot configuration
func FromConfig(cfg config.SnapshotConfig) (Sink, error) {
	if cfg.UseS3() {
		return NewS3Sink(cfg)
	}
	return DirSink{Root: cfg.Dir}, nil
}
