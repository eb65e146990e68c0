package host

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/neovim/go-client/nvim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-live-preview/internal/bus"
	"go-live-preview/internal/config"
	"go-live-preview/internal/contracts"
	"go-live-preview/internal/document"
	"go-live-preview/internal/form"
	"go-live-preview/internal/notify"
)

type fakeWriter struct {
	lines [][]byte
	err   error
}

func (w *fakeWriter) SetBufferLines(buffer nvim.Buffer, start int, end int, strict bool, replacement [][]byte) error {
	w.lines = replacement
	return w.err
}

type fakeMessenger struct {
	out  []string
	errs []string
}

func (m *fakeMessenger) WriteOut(str string) error {
	m.out = append(m.out, str)
	return nil
}

func (m *fakeMessenger) WritelnErr(str string) error {
	m.errs = append(m.errs, str)
	return nil
}

func TestBufferViewRender(t *testing.T) {
	w := &fakeWriter{}
	editor := &bufferEditor{}
	view := &bufferView{writer: w, editor: editor}

	doc := &document.Document{Data: map[string]any{"title": "X", "theme": "vox"}}
	require.NoError(t, view.Render(doc))

	assert.Equal(t, "{", string(w.lines[0]))
	assert.Equal(t, "}", string(w.lines[len(w.lines)-1]))

	values, err := form.RawText(editor).Value()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "X", "theme": "vox"}, values)
}

func TestBufferViewEmptyData(t *testing.T) {
	w := &fakeWriter{}
	view := &bufferView{writer: w, editor: &bufferEditor{}}

	require.NoError(t, view.Render(&document.Document{}))
	require.Len(t, w.lines, 1)
	assert.Equal(t, "{}", string(w.lines[0]))
}

func TestBufferEditorJoinsLines(t *testing.T) {
	editor := &bufferEditor{}
	editor.setLines([][]byte{[]byte(`{"title":`), []byte(`"X"}`)})
	assert.Equal(t, "{\"title\":\n\"X\"}", editor.Text())
}

func TestEchoNotifier(t *testing.T) {
	m := &fakeMessenger{}
	n := &echoNotifier{out: m, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	n.Success("Building complete")
	n.Alert("Building... This might take a moment.", notify.LevelNotice, false, 16*time.Second)
	n.Error("Title is too long")
	n.DisplayError(500, "Internal Server Error", "boom\ntrace")

	assert.Equal(t, []string{
		"[go-live-preview] Building complete\n",
		"[go-live-preview] Building... This might take a moment.\n",
	}, m.out)
	assert.Equal(t, []string{
		"[go-live-preview] Title is too long",
		"[go-live-preview] 500 Internal Server Error: boom",
	}, m.errs)
}

func TestAnnouncingTransport(t *testing.T) {
	var announced []string
	tr := &announcingTransport{
		next:     linkTransport{},
		announce: func(url string) { announced = append(announced, url) },
	}

	frame, err := tr.Load(context.Background(), "s", "bar-chart__graphic", "http://127.0.0.1:7777/v3-vox/preview#new")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://127.0.0.1:7777/v3-vox/preview"}, announced)

	select {
	case <-frame.Ready():
	default:
		t.Fatal("link frame should be ready immediately")
	}
	assert.NoError(t, frame.Send(contracts.Message{Type: contracts.MessageTypeUpdateData}))
	assert.NoError(t, frame.Close())
}

func TestNewBus(t *testing.T) {
	ctx := context.Background()

	t.Run("memory without redis", func(t *testing.T) {
		b, err := newBus(ctx, config.Default())
		require.NoError(t, err)
		assert.IsType(t, &bus.Memory{}, b)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Bus.RedisAddr = mr.Addr()

		b, err := newBus(ctx, cfg)
		require.NoError(t, err)
		r, ok := b.(*bus.Redis)
		require.True(t, ok)
		assert.NoError(t, r.Close())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := config.Default()
		cfg.Bus.RedisAddr = "127.0.0.1:1"

		_, err := newBus(ctx, cfg)
		assert.ErrorContains(t, err, "status bus")
	})
}

func TestBufferViewReplacesSchemaForm(t *testing.T) {
	bp := &document.Blueprint{ID: "7", Form: &document.FormConfig{Schema: []byte(`{"type":"object","properties":{"caption":{"type":"string"}}}`)}}
	schema, err := form.NewSchemaForm(bp, []document.Theme{{Value: "generic"}}, map[string]any{"title": "Old"})
	require.NoError(t, err)

	view := &bufferView{writer: &fakeWriter{}, editor: &bufferEditor{}, schema: schema}
	require.NoError(t, view.Render(&document.Document{Data: map[string]any{"title": "New", "theme": "generic"}}))

	values, err := schema.Values()
	require.NoError(t, err)
	assert.Equal(t, "New", values["title"])
}
