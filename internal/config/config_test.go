package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		cfg, err := Parse([]byte(`
api:
  base_url: https://api.example.com
  collection: graphics
  timeout: 3s
document_id: "42"
entity: graphic
media_base_url: https://media.example.com/bar-chart
themes:
  - value: vox
    label: Vox
  - value: custom
    label: Custom
preview:
  container_id: chart__graphic
  debounce: 250ms
  discard_stale: true
bus:
  redis_addr: localhost:6379
  redis_db: 2
frame:
  addr: 0.0.0.0:9000
log:
  level: debug
`))
		require.NoError(t, err)

		assert.Equal(t, "graphics", cfg.API.Collection)
		assert.Equal(t, 3*time.Second, cfg.API.Timeout)
		assert.Equal(t, "42", cfg.DocumentID)
		assert.Equal(t, "graphic", cfg.Entity)
		assert.Len(t, cfg.Themes, 2)
		assert.Equal(t, 250*time.Millisecond, cfg.Preview.Debounce)
		assert.True(t, cfg.Preview.DiscardStale)
		assert.Equal(t, 2, cfg.Bus.RedisDB)
		assert.Equal(t, "https://media.example.com/bar-chart", cfg.MediaBaseURL)

		level, err := cfg.SlogLevel()
		require.NoError(t, err)
		assert.Equal(t, slog.LevelDebug, level)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Parse([]byte("api:\n  base_url: http://localhost:3000\ndocument_id: \"7\"\n"))
		require.NoError(t, err)

		assert.Equal(t, "projects", cfg.API.Collection)
		assert.Equal(t, 10*time.Second, cfg.API.Timeout)
		assert.Equal(t, "project", cfg.Entity)
		assert.Equal(t, 500*time.Millisecond, cfg.Preview.Debounce)
		assert.False(t, cfg.Preview.DiscardStale)
		assert.Equal(t, "127.0.0.1:7777", cfg.Frame.Addr)
		assert.Equal(t, "http://127.0.0.1:7777", cfg.MediaBaseURL)
		assert.Equal(t, "generic", cfg.Themes[0].Value)
		assert.Empty(t, cfg.Bus.RedisAddr)
	})

	t.Run("missing base url", func(t *testing.T) {
		_, err := Parse([]byte("document_id: \"7\"\n"))
		assert.ErrorContains(t, err, "api.base_url is required")
	})

	t.Run("missing document id", func(t *testing.T) {
		_, err := Parse([]byte("api:\n  base_url: http://localhost:3000\n"))
		assert.ErrorContains(t, err, "document_id is required")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := Parse([]byte("api:\n  base_url: http://localhost\ndocument_id: \"7\"\nlog:\n  level: loud\n"))
		assert.ErrorContains(t, err, "log.level")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("api: [\n"))
		assert.ErrorContains(t, err, "failed to parse config")
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go-live-preview.yml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://localhost:3000\ndocument_id: \"7\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7", cfg.DocumentID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "projects", cfg.API.Collection)
	assert.Error(t, cfg.Validate())
}
