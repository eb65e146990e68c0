package theme

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-live-preview/internal/channel"
	"go-live-preview/internal/contracts"
	"go-live-preview/internal/document"
	"go-live-preview/internal/loop"
)

type recordingFrame struct {
	ready chan struct{}
	mu    sync.Mutex
	sent  []contracts.Message
}

func (f *recordingFrame) Ready() <-chan struct{} { return f.ready }
func (f *recordingFrame) Done() <-chan struct{}  { return nil }
func (f *recordingFrame) Close() error           { return nil }

func (f *recordingFrame) Send(msg contracts.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *recordingFrame) messages() []contracts.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contracts.Message(nil), f.sent...)
}

// autoReadyTransport records every load and reports ready immediately.
type autoReadyTransport struct {
	mu     sync.Mutex
	urls   []string
	frames []*recordingFrame
}

func (t *autoReadyTransport) Load(ctx context.Context, sessionID, containerID, url string) (channel.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &recordingFrame{ready: make(chan struct{})}
	close(f.ready)
	t.urls = append(t.urls, url)
	t.frames = append(t.frames, f)
	return f, nil
}

func (t *autoReadyTransport) loads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.urls...)
}

func (t *autoReadyTransport) frame(i int) *recordingFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[i]
}

func setup(t *testing.T) (*loop.Loop, *Coordinator, *channel.Channel, *autoReadyTransport) {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	tr := &autoReadyTransport{}
	ch := channel.New(l, tr, nil)
	coord := NewCoordinator(ch, "bar-chart__graphic", func(theme string) string {
		return document.RendererURL("http://media.example.com", "v3", theme, true)
	}, nil)
	return l, coord, ch, tr
}

func ready(l *loop.Loop, ch *channel.Channel) func() bool {
	return func() bool {
		var s channel.State
		l.Call(func() { s = ch.State() })
		return s == channel.SessionReady
	}
}

func TestThemeSwitchOpensSession(t *testing.T) {
	l, coord, ch, tr := setup(t)

	var opened bool
	l.Call(func() { opened = coord.Apply("custom", true, `{"theme":"custom","title":"X"}`) })
	assert.True(t, opened)

	require.Eventually(t, ready(l, ch), time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"http://media.example.com/v3-custom/preview#new"}, tr.loads())

	msgs := tr.frame(0).messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, contracts.MessageTypeUpdateData, msgs[0].Type)
	assert.JSONEq(t, `{"theme":"custom","title":"X"}`, msgs[0].Payload)
}

func TestSameThemeFastPath(t *testing.T) {
	l, coord, ch, tr := setup(t)

	l.Call(func() { coord.Apply("custom", true, `{"title":"X"}`) })
	require.Eventually(t, ready(l, ch), time.Second, 5*time.Millisecond)

	var opened bool
	l.Call(func() { opened = coord.Apply("custom", true, `{"title":"Y"}`) })
	assert.False(t, opened)
	assert.Len(t, tr.loads(), 1)

	msgs := tr.frame(0).messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"title":"Y"}`, msgs[1].Payload)
}

func TestMissingThemeKeepsSession(t *testing.T) {
	l, coord, ch, tr := setup(t)

	l.Call(func() { coord.Apply("vox", true, `{"title":"X"}`) })
	require.Eventually(t, ready(l, ch), time.Second, 5*time.Millisecond)

	l.Call(func() { coord.Apply("", false, `{"title":"Y"}`) })
	assert.Len(t, tr.loads(), 1)
	assert.Len(t, tr.frame(0).messages(), 2)

	var current string
	l.Call(func() { current = coord.Current() })
	assert.Equal(t, "vox", current)
}

func TestNoThemeNoSessionDrops(t *testing.T) {
	l, coord, _, tr := setup(t)

	var opened bool
	l.Call(func() { opened = coord.Apply("", false, `{"title":"X"}`) })
	assert.False(t, opened)
	assert.Empty(t, tr.loads())
}

func TestSwitchBetweenThemes(t *testing.T) {
	l, coord, ch, tr := setup(t)

	l.Call(func() { coord.Apply("vox", true, `{"title":"X"}`) })
	require.Eventually(t, ready(l, ch), time.Second, 5*time.Millisecond)

	l.Call(func() { coord.Apply("eater", true, `{"title":"X"}`) })
	require.Eventually(t, func() bool { return len(tr.loads()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, ready(l, ch), time.Second, 5*time.Millisecond)

	assert.Equal(t, "http://media.example.com/v3-eater/preview#new", tr.loads()[1])
	assert.Len(t, tr.frame(1).messages(), 1)
}
