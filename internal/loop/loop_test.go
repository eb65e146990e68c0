package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	require.True(t, l.Call(func() {}))
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostFromLoop(t *testing.T) {
	l, _ := startLoop(t)

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestPostAfterStop(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Call(func() {}))
}
