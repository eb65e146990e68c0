// Package theme replaces the preview session when the computed theme of
// the build data changes, and otherwise feeds the existing session.
package theme

import (
	"log/slog"

	"go-live-preview/internal/channel"
	"go-live-preview/internal/contracts"
)

// URLFunc returns the renderer URL for a theme.
type URLFunc func(theme string) string

// Coordinator must only be used from the loop goroutine.
type Coordinator struct {
	channel     *channel.Channel
	containerID string
	urlFor      URLFunc
	log         *slog.Logger
}

func NewCoordinator(ch *channel.Channel, containerID string, urlFor URLFunc, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{channel: ch, containerID: containerID, urlFor: urlFor, log: logger}
}

// Current returns the theme of the open session, "" when none is open.
func (c *Coordinator) Current() string {
	if s := c.channel.Session(); s != nil {
		return s.Theme
	}
	return ""
}

// Open starts a session for theme regardless of the current one.
func (c *Coordinator) Open(theme string) *channel.Session {
	return c.channel.Open(c.containerID, c.urlFor(theme), theme)
}

// Apply delivers payload, reopening the frame first when theme differs
// from the loaded one. Reports whether a new session was opened.
func (c *Coordinator) Apply(theme string, hasTheme bool, payload string) bool {
	current := c.Current()

	if hasTheme && (c.channel.Session() == nil || theme != current) {
		c.log.Info("preview theme switch", "from", current, "to", theme)
		c.Open(theme)
		c.channel.Send(contracts.MessageTypeUpdateData, payload)
		return true
	}

	if c.channel.Session() == nil {
		c.log.Debug("build data without theme and no preview session, dropped")
		return false
	}

	c.channel.Send(contracts.MessageTypeUpdateData, payload)
	return false
}
