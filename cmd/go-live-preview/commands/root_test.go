package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flag values outlive an Execute call.
	logLevel = "info"
	publishEntity = "project"
	publishRedisDB = 0
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	out, err := run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "publish-status")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--log-level=loud", "publish-status", "42", "built")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestPublishStatus(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	sub := client.Subscribe(ctx, "change:graphic:42")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	out, err := run(t, "publish-status", "--redis-addr", mr.Addr(), "--entity", "graphic", "42", "built")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ change:graphic:42 → built")

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "built", msg.Payload)
}

func TestPublishStatusNeedsTwoArgs(t *testing.T) {
	_, err := run(t, "publish-status", "42")
	assert.Error(t, err)
}
