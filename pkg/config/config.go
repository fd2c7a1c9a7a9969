package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultPort is the HTTP port the web viewer listens on.
	DefaultPort = 8080
	// DefaultStaticDir holds the viewer page.
	DefaultStaticDir = "web/static"
	// DefaultScene is rendered when a request names none.
	DefaultScene = "mountains"
	// DefaultMaxDimension bounds the width and height of any requested frame.
	DefaultMaxDimension = 2048
	// DefaultPingInterval controls the keepalive cadence for live viewer connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket messages.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultSnapshotDir receives snapshots when no bucket is configured.
	DefaultSnapshotDir = "output/snapshots"
)

// Config captures all runtime tunables for the web viewer.
type Config struct {
	Port            int
	StaticDir       string
	DefaultScene    string
	Workers         int // 0 = use CPU count
	RenderScale     int // Live frames render at 1/RenderScale and are upscaled
	MaxDimension    int
	PingInterval    time.Duration
	MaxPayloadBytes int64
	AllowedOrigins  []string
	RecordDir       string // Empty disables session recording
	Snapshots       SnapshotConfig
}

// SnapshotConfig selects where published snapshots go. A non-empty Bucket selects
// S3, otherwise snapshots are written under Dir.
type SnapshotConfig struct {
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string // Base URL used to build links to uploaded objects
}

// UseS3 reports whether snapshots are uploaded to a bucket
func (s SnapshotConfig) UseS3() bool {
	return s.Bucket != ""
}

// Load reads the configuration from the environment after applying an optional .env
// file from the working directory.
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile reads the configuration from the environment after applying the
// given env file. Variables already set in the environment win over the file, and a
// missing file is not an error.
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:            DefaultPort,
		StaticDir:       getString("TERRAIN_STATIC_DIR", DefaultStaticDir),
		DefaultScene:    getString("TERRAIN_SCENE", DefaultScene),
		RenderScale:     1,
		MaxDimension:    DefaultMaxDimension,
		PingInterval:    DefaultPingInterval,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		AllowedOrigins:  parseList(os.Getenv("TERRAIN_ALLOWED_ORIGINS")),
		RecordDir:       strings.TrimSpace(os.Getenv("TERRAIN_RECORD_DIR")),
		Snapshots: SnapshotConfig{
			Dir:       getString("TERRAIN_SNAPSHOT_DIR", DefaultSnapshotDir),
			Bucket:    strings.TrimSpace(os.Getenv("TERRAIN_S3_BUCKET")),
			Region:    getString("TERRAIN_S3_REGION", "us-east-1"),
			Endpoint:  strings.TrimSpace(os.Getenv("TERRAIN_S3_ENDPOINT")),
			AccessKey: strings.TrimSpace(os.Getenv("TERRAIN_S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("TERRAIN_S3_SECRET_KEY")),
			PublicURL: strings.TrimRight(strings.TrimSpace(os.Getenv("TERRAIN_S3_PUBLIC_URL")), "/"),
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_PORT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("TERRAIN_PORT must be a valid port number, got %q", raw))
		} else {
			cfg.Port = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_WORKERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("TERRAIN_WORKERS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Workers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_RENDER_SCALE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 16 {
			problems = append(problems, fmt.Sprintf("TERRAIN_RENDER_SCALE must be an integer between 1 and 16, got %q", raw))
		} else {
			cfg.RenderScale = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_MAX_DIMENSION")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 16 {
			problems = append(problems, fmt.Sprintf("TERRAIN_MAX_DIMENSION must be an integer of at least 16, got %q", raw))
		} else {
			cfg.MaxDimension = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("TERRAIN_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TERRAIN_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("TERRAIN_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if (cfg.Snapshots.AccessKey == "") != (cfg.Snapshots.SecretKey == "") {
		problems = append(problems, "TERRAIN_S3_ACCESS_KEY and TERRAIN_S3_SECRET_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
