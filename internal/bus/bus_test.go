package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a redis bus connected to a miniredis instance
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	b := NewRedis(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func receive(t *testing.T, sub *Subscription) string {
	t.Helper()
	select {
	case v, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return ""
	}
}

func testBus(t *testing.T, b Bus) {
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "change:project:42")
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, "change:project:42", sub.Topic())

	other, err := b.Subscribe(ctx, "change:project:7")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, "change:project:42", "building"))
	require.NoError(t, b.Publish(ctx, "change:project:42", `"built"`))

	assert.Equal(t, "building", receive(t, sub))
	assert.Equal(t, "built", receive(t, sub))

	select {
	case v := <-other.Events():
		t.Fatalf("unexpected event on other topic: %q", v)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestRedisBus(t *testing.T) {
	b, _ := setupTestRedis(t)
	require.NoError(t, b.Ping(context.Background()))
	testBus(t, b)
}

func TestRedisSubscribeFailure(t *testing.T) {
	b := NewRedis(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.Subscribe(ctx, "change:project:42")
	assert.Error(t, err)
}

func TestMemoryBus(t *testing.T) {
	b := NewMemory()
	testBus(t, b)

	require.Eventually(t, func() bool { return b.Subscribers("change:project:42") == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBusDropsWhenFull(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 15; i++ {
		require.NoError(t, b.Publish(ctx, "t", "building"))
	}
	assert.Equal(t, uint64(5), b.Dropped())
}

func TestDecodePayload(t *testing.T) {
	assert.Equal(t, "built", decodePayload("built"))
	assert.Equal(t, "built", decodePayload(` "built" `))
	assert.Equal(t, `"broken`, decodePayload(`"broken`))
}
