package server

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/df07/go-terrain-marcher/pkg/core"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	RenderID  string    `json:"renderId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "info", "warning", "error"
}

// WebLogger implements core.Logger by mirroring messages to a render's console
type WebLogger struct {
	renderID    string
	consoleChan chan<- ConsoleMessage
}

// NewWebLogger creates a new web logger for a specific render or live session
func NewWebLogger(renderID string, consoleChan chan<- ConsoleMessage) core.Logger {
	return &WebLogger{
		renderID:    renderID,
		consoleChan: consoleChan,
	}
}

// Printf implements core.Logger interface
func (wl *WebLogger) Printf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	// Server log gets every message tagged with its render
	log.Printf("[%s] %s", wl.renderID, strings.TrimRight(message, "\n"))

	if wl.consoleChan == nil {
		return
	}
	select {
	case wl.consoleChan <- ConsoleMessage{
		RenderID:  wl.renderID,
		Message:   message,
		Timestamp: time.Now(),
		Level:     messageLevel(message),
	}:
	default:
		// Channel full, skip (don't block)
	}
}

// messageLevel classifies a message by its leading word
func messageLevel(message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.HasPrefix(lower, "error"), strings.Contains(lower, "failed"):
		return "error"
	case strings.HasPrefix(lower, "warning"), strings.Contains(lower, "cancelled"), strings.Contains(lower, "stopped"):
		return "warning"
	}
	return "info"
}
