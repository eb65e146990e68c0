// Package channel owns the message link to the embedded rendering frame.
//
// A Channel holds at most one Session. Opening a new session discards the
// previous frame together with anything still queued for it. Messages sent
// before the frame reports ready are deferred and flushed in order once it
// does.
package channel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"go-live-preview/internal/contracts"
	"go-live-preview/internal/loop"
)

// Frame is one loaded child rendering context.
type Frame interface {
	// Ready is closed when the child completes its handshake.
	Ready() <-chan struct{}
	// Done is closed once the frame is gone, whether or not it got ready.
	Done() <-chan struct{}
	// Send delivers a message. Messages are delivered in call order.
	Send(msg contracts.Message) error
	// Close discards the frame.
	Close() error
}

// ErrFrameClosed is reported when a frame goes away before it is ready.
var ErrFrameClosed = errors.New("channel: frame closed before ready")

// Transport loads frames. Load may block until the child is reachable;
// ctx is cancelled when the session is superseded.
type Transport interface {
	Load(ctx context.Context, sessionID, containerID, url string) (Frame, error)
}

// State is the lifecycle state of the channel's current session.
type State int

const (
	NoSession State = iota
	SessionOpening
	SessionReady
)

func (s State) String() string {
	switch s {
	case SessionOpening:
		return "opening"
	case SessionReady:
		return "ready"
	default:
		return "none"
	}
}

// Session is one instantiation of the rendering frame.
type Session struct {
	ID          string
	ContainerID string
	URL         string
	Theme       string

	state   State
	frame   Frame
	pending []contracts.Message
	onReady []func()
	cancel  context.CancelFunc
}

// State returns the session state.
func (s *Session) State() State {
	return s.state
}

// Channel must only be used from the loop goroutine.
type Channel struct {
	loop      *loop.Loop
	transport Transport
	log       *slog.Logger

	// OnLoadError is called on the loop when a session fails to load.
	OnLoadError func(s *Session, err error)

	session *Session
}

func New(l *loop.Loop, transport Transport, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{loop: l, transport: transport, log: logger}
}

// Session returns the current session, nil when none is open.
func (c *Channel) Session() *Session {
	return c.session
}

// State returns the current session's state.
func (c *Channel) State() State {
	if c.session == nil {
		return NoSession
	}
	return c.session.state
}

// Open clears the container and loads a new frame at url.
func (c *Channel) Open(containerID, url, theme string) *Session {
	c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.NewString(),
		ContainerID: containerID,
		URL:         url,
		Theme:       theme,
		state:       SessionOpening,
		cancel:      cancel,
	}
	c.session = s
	c.log.Debug("preview session opening", "session", s.ID, "url", url, "theme", theme)

	go func() {
		frame, err := c.transport.Load(ctx, s.ID, containerID, url)
		if err != nil {
			c.loop.Post(func() { c.loadFailed(s, err) })
			return
		}

		select {
		case <-frame.Ready():
		case <-frame.Done():
			_ = frame.Close()
			c.loop.Post(func() { c.loadFailed(s, ErrFrameClosed) })
			return
		case <-ctx.Done():
			_ = frame.Close()
			return
		}

		if !c.loop.Post(func() { c.ready(s, frame) }) {
			_ = frame.Close()
		}
	}()

	return s
}

// Send transmits a message to the current session, deferring it until the
// session is ready. Without a session the message is dropped.
func (c *Channel) Send(msgType, payload string) {
	s := c.session
	if s == nil {
		c.log.Debug("preview message dropped, no session", "type", msgType)
		return
	}

	msg := contracts.Message{Type: msgType, Payload: payload}
	if s.state != SessionReady {
		s.pending = append(s.pending, msg)
		return
	}
	c.deliver(s, msg)
}

// OnReady runs fn once the current session is ready, immediately if it
// already is.
func (c *Channel) OnReady(fn func()) {
	s := c.session
	if s == nil {
		return
	}
	if s.state == SessionReady {
		fn()
		return
	}
	s.onReady = append(s.onReady, fn)
}

// Close discards the current session and its deferred sends.
func (c *Channel) Close() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil

	s.cancel()
	s.pending = nil
	s.onReady = nil
	s.state = NoSession
	if s.frame != nil {
		_ = s.frame.Close()
		s.frame = nil
	}
	c.log.Debug("preview session closed", "session", s.ID)
}

func (c *Channel) ready(s *Session, frame Frame) {
	if c.session != s {
		_ = frame.Close()
		return
	}

	s.frame = frame
	s.state = SessionReady
	c.log.Debug("preview session ready", "session", s.ID, "deferred", len(s.pending))

	pending := s.pending
	s.pending = nil
	for _, msg := range pending {
		c.deliver(s, msg)
	}

	callbacks := s.onReady
	s.onReady = nil
	for _, fn := range callbacks {
		if c.session != s {
			return
		}
		fn()
	}
}

func (c *Channel) loadFailed(s *Session, err error) {
	if c.session != s {
		return
	}
	c.log.Error("preview session failed to load", "session", s.ID, "url", s.URL, "error", err)
	c.Close()
	if c.OnLoadError != nil {
		c.OnLoadError(s, err)
	}
}

func (c *Channel) deliver(s *Session, msg contracts.Message) {
	if err := s.frame.Send(msg); err != nil {
		c.log.Warn("preview message not delivered", "session", s.ID, "type", msg.Type, "error", err)
	}
}
