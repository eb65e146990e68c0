// Package httpserver hosts the rendering side of the preview channel.
//
// Editors connect to /{build}/preview with a websocket, complete the
// hello/ready handshake and push updateData messages. Browsers load the
// same path as HTML and follow rendered updates over /{build}/preview/ws.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"go-live-preview/internal/contracts"
	"go-live-preview/internal/render"
)

const handshakeWait = 10 * time.Second

type pageUpdate struct {
	build string
	title string
	html  string
}

type viewer struct {
	build string
	conn  *websocket.Conn
}

type page struct {
	last    contracts.RenderMessage
	viewers map[*websocket.Conn]struct{}
}

// PreviewServer serves renderer sessions and preview viewers.
type PreviewServer struct {
	addr     string
	renderer *render.Renderer
	log      *slog.Logger
	router   chi.Router

	updates    chan pageUpdate
	register   chan viewer
	unregister chan viewer
	stopLoop   chan struct{}
	stopped    chan struct{}

	upgrader websocket.Upgrader
}

// NewPreviewServer creates a renderer host bound to addr and starts its
// run loop. Call Close to stop it.
func NewPreviewServer(addr string, renderer *render.Renderer, logger *slog.Logger) *PreviewServer {
	if logger == nil {
		logger = slog.Default()
	}

	m := &PreviewServer{
		addr:     addr,
		renderer: renderer,
		log:      logger,

		updates:    make(chan pageUpdate, 8),
		register:   make(chan viewer),
		unregister: make(chan viewer),
		stopLoop:   make(chan struct{}),
		stopped:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/{build}/preview", m.handlePreview)
	r.Get("/{build}/preview/ws", m.handleViewer)
	m.router = r

	go m.runLoop()
	return m
}

// URL returns the renderer base URL.
func (m *PreviewServer) URL() string {
	return "http://" + m.addr
}

// Handler exposes the routes, for embedding or tests.
func (m *PreviewServer) Handler() http.Handler {
	return m.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (m *PreviewServer) ListenAndServe(ctx context.Context) error {
	server := &http.Server{Addr: m.addr, Handler: m.router}

	errCh := make(chan error, 1)
	go func() {
		m.log.Info("renderer host listening", "addr", m.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// Close stops the run loop and disconnects viewers.
func (m *PreviewServer) Close() {
	select {
	case <-m.stopLoop:
	default:
		close(m.stopLoop)
	}
	<-m.stopped
}

// handlePreview serves the HTML shell, or the editor channel for upgrades.
func (m *PreviewServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	build := chi.URLParam(r, "build")

	if websocket.IsWebSocketUpgrade(r) {
		m.handleEditor(w, r, build)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(m.renderer.RenderShell(build, themeOf(build))))
}

// handleEditor runs one renderer session for an editor connection.
func (m *PreviewServer) handleEditor(w http.ResponseWriter, r *http.Request, build string) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	var hello contracts.HelloMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != contracts.MessageTypeHello {
		m.log.Warn("renderer handshake failed", "build", build, "error", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	log := m.log.With("build", build, "session", hello.Session)
	if err := conn.WriteJSON(contracts.ReadyMessage{Type: contracts.MessageTypeReady, Session: hello.Session}); err != nil {
		return
	}
	log.Info("renderer session ready", "container", hello.Container, "new", hello.New)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug("renderer session ended", "error", err)
			return
		}

		var envelope contracts.IncomingMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if envelope.Type != contracts.MessageTypeUpdateData {
			continue
		}

		var msg contracts.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Warn("updateData payload is not a JSON object", "error", err)
			continue
		}

		title, fragment, err := m.renderer.RenderPayload(payload)
		if err != nil {
			log.Warn("render failed", "error", err)
			continue
		}

		select {
		case m.updates <- pageUpdate{build: build, title: title, html: fragment}:
		case <-m.stopLoop:
			return
		}
	}
}

// handleViewer upgrades a browser connection and holds it open until it
// closes; all writes happen on the run loop.
func (m *PreviewServer) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	v := viewer{build: chi.URLParam(r, "build"), conn: conn}
	select {
	case m.register <- v:
	case <-m.stopLoop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case m.unregister <- v:
		case <-m.stopLoop:
		}
	}()

	// Block here until the connection closes / errors outs
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// runLoop serializes page state and viewer writes on a single goroutine.
func (m *PreviewServer) runLoop() {
	defer close(m.stopped)

	pages := make(map[string]*page)
	pageFor := func(build string) *page {
		p, ok := pages[build]
		if !ok {
			p = &page{
				last:    contracts.RenderMessage{Type: contracts.MessageTypeRender, Theme: themeOf(build)},
				viewers: make(map[*websocket.Conn]struct{}),
			}
			pages[build] = p
		}
		return p
	}

	for {
		select {
		case update := <-m.updates:
			p := pageFor(update.build)
			p.last.Rev++
			p.last.HTML = update.html
			p.last.Title = update.title

			for conn := range p.viewers {
				if !writeJSON(conn, p.last) {
					delete(p.viewers, conn)
				}
			}

		case v := <-m.register:
			p := pageFor(v.build)
			p.viewers[v.conn] = struct{}{}

			if p.last.Rev > 0 && !writeJSON(v.conn, p.last) {
				delete(p.viewers, v.conn)
			}

		case v := <-m.unregister:
			p := pageFor(v.build)
			if _, ok := p.viewers[v.conn]; ok {
				_ = v.conn.Close()
				delete(p.viewers, v.conn)
			}

		case <-m.stopLoop:
			for _, p := range pages {
				for conn := range p.viewers {
					_ = conn.Close()
				}
			}
			return
		}
	}
}

// themeOf extracts the theme from a "{version}-{theme}" build name.
func themeOf(build string) string {
	if i := strings.LastIndex(build, "-"); i >= 0 {
		return build[i+1:]
	}
	return build
}

// writeJSON writes a JSON message and reports whether the connection is usable.
func writeJSON(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
