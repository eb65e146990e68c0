package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-live-preview/internal/bus"
	"go-live-preview/internal/document"
	"go-live-preview/internal/loop"
)

type statusLog struct {
	mu   sync.Mutex
	seen []document.Status
}

func (s *statusLog) handle(st document.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, st)
}

func (s *statusLog) all() []document.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]document.Status(nil), s.seen...)
}

func setup(t *testing.T) (*loop.Loop, *bus.Memory, *Subscription) {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	b := bus.NewMemory()
	return l, b, New(l, b, "project", nil)
}

func TestSubscribeDeliversStatus(t *testing.T) {
	l, b, sub := setup(t)
	log := &statusLog{}

	l.Call(func() { assert.True(t, sub.Subscribe("42", false, log.handle)) })
	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "change:project:42", "built"))
	require.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, document.StatusBuilt, log.all()[0])
}

func TestSubscribeIdempotent(t *testing.T) {
	l, b, sub := setup(t)
	log := &statusLog{}

	l.Call(func() {
		assert.True(t, sub.Subscribe("42", false, log.handle))
		assert.False(t, sub.Subscribe("42", false, log.handle))
		assert.True(t, sub.Active())
		assert.Equal(t, "change:project:42", sub.Topic())
	})
	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, b.Subscribers("change:project:42"))

	require.NoError(t, b.Publish(context.Background(), "change:project:42", "building"))
	require.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, log.all(), 1)
}

func TestNewDocumentIsNotSubscribed(t *testing.T) {
	l, _, sub := setup(t)

	l.Call(func() {
		assert.False(t, sub.Subscribe("", true, func(document.Status) {}))
		assert.False(t, sub.Active())
	})
}

func TestUnsubscribe(t *testing.T) {
	l, b, sub := setup(t)
	log := &statusLog{}

	l.Call(sub.Unsubscribe)

	l.Call(func() { sub.Subscribe("42", false, log.handle) })
	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 1 }, time.Second, 5*time.Millisecond)

	l.Call(func() {
		sub.Unsubscribe()
		sub.Unsubscribe()
		assert.False(t, sub.Active())
		assert.Empty(t, sub.Topic())
	})
	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "change:project:42", "built"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, log.all())

	l.Call(func() { assert.True(t, sub.Subscribe("42", false, log.handle)) })
	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 1 }, time.Second, 5*time.Millisecond)
}
