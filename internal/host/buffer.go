package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neovim/go-client/nvim"

	"go-live-preview/internal/channel"
	"go-live-preview/internal/contracts"
	"go-live-preview/internal/document"
	"go-live-preview/internal/form"
	"go-live-preview/internal/notify"
)

const prefix = "[go-live-preview] "

// bufferEditor is the raw JSON editor backed by a Neovim buffer. The text
// is refreshed from handler goroutines and read on the controller loop.
type bufferEditor struct {
	mu   sync.Mutex
	text string
}

func (e *bufferEditor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *bufferEditor) setLines(lines [][]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = string(bytes.Join(lines, []byte("\n")))
}

func formatData(data map[string]any) ([][]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return bytes.Split(raw, []byte("\n")), nil
}

// bufferWriter is the part of *nvim.Nvim the view needs.
type bufferWriter interface {
	SetBufferLines(buffer nvim.Buffer, start int, end int, strict bool, replacement [][]byte) error
}

// bufferView re-renders a refetched document into the editor buffer.
// schema is nil when the blueprint has no form.
type bufferView struct {
	buf    nvim.Buffer
	writer bufferWriter
	editor *bufferEditor
	schema *form.SchemaForm
}

func (v *bufferView) Render(doc *document.Document) error {
	lines, err := formatData(doc.Data)
	if err != nil {
		return fmt.Errorf("format document data: %w", err)
	}
	if err := v.writer.SetBufferLines(v.buf, 0, -1, true, lines); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	v.editor.setLines(lines)
	if v.schema != nil {
		v.schema.Replace(doc.Data)
	}
	return nil
}

// messenger is the part of *nvim.Nvim notifications are written to.
type messenger interface {
	WriteOut(str string) error
	WritelnErr(str string) error
}

// echoNotifier reports through the Neovim message area.
type echoNotifier struct {
	out messenger
	log *slog.Logger
}

func (n *echoNotifier) Success(message string) {
	n.write(message)
}

func (n *echoNotifier) Error(message string) {
	if err := n.out.WritelnErr(prefix + message); err != nil {
		n.log.Warn("nvim error message failed", "error", err)
	}
}

func (n *echoNotifier) Alert(message string, level notify.Level, dismissible bool, duration time.Duration) {
	if level == notify.LevelError {
		n.Error(message)
		return
	}
	n.write(message)
}

func (n *echoNotifier) DisplayError(statusCode int, statusText, body string) {
	msg := fmt.Sprintf("%d %s", statusCode, statusText)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + firstLine(body)
	}
	n.Error(msg)
}

func (n *echoNotifier) write(message string) {
	if err := n.out.WriteOut(prefix + message + "\n"); err != nil {
		n.log.Warn("nvim message failed", "error", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// announcingTransport tells the user where each loaded preview can be
// viewed.
type announcingTransport struct {
	next     channel.Transport
	announce func(url string)
}

func (t *announcingTransport) Load(ctx context.Context, sessionID, containerID, url string) (channel.Frame, error) {
	frame, err := t.next.Load(ctx, sessionID, containerID, url)
	if err != nil {
		return nil, err
	}
	t.announce(strings.TrimSuffix(url, "#new"))
	return frame, nil
}

// linkTransport loads server-built previews, which are static pages
// nothing can be sent to.
type linkTransport struct{}

func (linkTransport) Load(ctx context.Context, sessionID, containerID, url string) (channel.Frame, error) {
	f := &linkFrame{ready: make(chan struct{})}
	close(f.ready)
	return f, nil
}

type linkFrame struct {
	ready chan struct{}
}

func (f *linkFrame) Ready() <-chan struct{}           { return f.ready }
func (f *linkFrame) Done() <-chan struct{}            { return nil }
func (f *linkFrame) Send(msg contracts.Message) error { return nil }
func (f *linkFrame) Close() error                     { return nil }
