// Package notify defines the host notification surface the preview
// controller reports through.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is an alert severity.
type Level string

const (
	LevelNotice  Level = "notice"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier is implemented by the host application.
type Notifier interface {
	Success(message string)
	Error(message string)
	Alert(message string, level Level, dismissible bool, duration time.Duration)
	DisplayError(statusCode int, statusText, body string)
}

// Terminal writes notifications to a terminal, colored by level.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
	log *slog.Logger
}

func NewTerminal(out io.Writer, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{out: out, log: logger}
}

func (t *Terminal) Success(message string) {
	t.print(color.New(color.FgGreen, color.Bold), "✓ "+message)
	t.log.Info("notify success", "message", message)
}

func (t *Terminal) Error(message string) {
	t.print(color.New(color.FgRed, color.Bold), "✗ "+message)
	t.log.Warn("notify error", "message", message)
}

func (t *Terminal) Alert(message string, level Level, dismissible bool, duration time.Duration) {
	c := color.New(color.FgCyan)
	switch level {
	case LevelWarning:
		c = color.New(color.FgYellow)
	case LevelError:
		c = color.New(color.FgRed)
	case LevelSuccess:
		c = color.New(color.FgGreen)
	}
	t.print(c, "• "+message)
	t.log.Info("notify alert", "message", message, "level", level, "dismissible", dismissible, "duration", duration)
}

func (t *Terminal) DisplayError(statusCode int, statusText, body string) {
	msg := fmt.Sprintf("✗ %d %s", statusCode, statusText)
	if body = strings.TrimSpace(body); body != "" {
		msg += "\n" + body
	}
	t.print(color.New(color.FgRed), msg)
	t.log.Error("notify display error", "status", statusCode, "status_text", statusText)
}

func (t *Terminal) print(c *color.Color, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = c.Fprintln(t.out, line)
}
