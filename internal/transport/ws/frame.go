// Package ws loads rendering frames over websocket connections.
//
// Loading a frame dials the renderer URL, sends a hello carrying the
// session id, and waits for the renderer's ready reply. After that,
// messages are written by a single goroutine in the order they were sent.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-live-preview/internal/channel"
	"go-live-preview/internal/contracts"
)

// ErrClosed is returned by Send after the frame closed.
var ErrClosed = errors.New("ws: frame closed")

const writeWait = 5 * time.Second

// Transport implements channel.Transport.
type Transport struct {
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewTransport(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    logger,
	}
}

// Load dials rawURL and starts the handshake. The #new fragment is carried
// in the hello message since fragments never reach the server.
func (t *Transport) Load(ctx context.Context, sessionID, containerID, rawURL string) (channel.Frame, error) {
	socket, unpopulated, err := socketURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := t.dialer.DialContext(ctx, socket, nil)
	if err != nil {
		return nil, fmt.Errorf("dial renderer %s: %w", socket, err)
	}

	hello := contracts.HelloMessage{
		Type:      contracts.MessageTypeHello,
		Session:   sessionID,
		Container: containerID,
		New:       unpopulated,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	f := &Frame{
		conn:    conn,
		session: sessionID,
		ready:   make(chan struct{}),
		out:     make(chan contracts.Message, 64),
		done:    make(chan struct{}),
		log:     t.log.With("session", sessionID),
	}
	go f.readLoop()
	go f.writeLoop()
	return f, nil
}

// Frame is a websocket link to one renderer session.
type Frame struct {
	conn    *websocket.Conn
	session string
	log     *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	out       chan contracts.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (f *Frame) Ready() <-chan struct{} {
	return f.ready
}

// Done is closed once the frame is closed locally or by the renderer.
func (f *Frame) Done() <-chan struct{} {
	return f.done
}

func (f *Frame) Send(msg contracts.Message) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}

	select {
	case f.out <- msg:
		return nil
	case <-f.done:
		return ErrClosed
	}
}

func (f *Frame) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		_ = f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = f.conn.Close()
	})
	return nil
}

// readLoop handles renderer replies until the connection drops.
func (f *Frame) readLoop() {
	defer f.Close()

	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope contracts.IncomingMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case contracts.MessageTypeReady:
			var msg contracts.ReadyMessage
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Session != f.session {
				continue
			}
			f.readyOnce.Do(func() { close(f.ready) })

		case contracts.MessageTypeHeight:
			var msg contracts.HeightMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			f.log.Debug("renderer height", "height", msg.Height)
		}
	}
}

// writeLoop serializes websocket writes on a single goroutine.
func (f *Frame) writeLoop() {
	for {
		select {
		case msg := <-f.out:
			_ = f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := f.conn.WriteJSON(msg); err != nil {
				f.log.Warn("renderer write failed", "type", msg.Type, "error", err)
				f.Close()
				return
			}
		case <-f.done:
			return
		}
	}
}

func socketURL(rawURL string) (string, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("parse renderer url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", false, fmt.Errorf("unsupported renderer url scheme %q", u.Scheme)
	}

	unpopulated := u.Fragment == "new"
	u.Fragment = ""
	return u.String(), unpopulated, nil
}
