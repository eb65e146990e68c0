package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-live-preview/internal/document"
)

// Config is the top-level go-live-preview.yml configuration
type Config struct {
	API          APIConfig        `yaml:"api"`
	DocumentID   string           `yaml:"document_id"`
	Entity       string           `yaml:"entity"`
	MediaBaseURL string           `yaml:"media_base_url"`
	Themes       []document.Theme `yaml:"themes,omitempty"`
	Preview      PreviewConfig    `yaml:"preview"`
	Bus          BusConfig        `yaml:"bus"`
	Frame        FrameConfig      `yaml:"frame"`
	Log          LogConfig        `yaml:"log"`
}

// APIConfig locates the document service
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Collection string        `yaml:"collection"` // documents live at {base_url}/{collection}/{id}
	Timeout    time.Duration `yaml:"timeout"`
}

// PreviewConfig tunes the live preview controller
type PreviewConfig struct {
	ContainerID  string        `yaml:"container_id,omitempty"` // default: {blueprint slug}__graphic
	Debounce     time.Duration `yaml:"debounce"`
	DiscardStale bool          `yaml:"discard_stale"` // drop build data responses older than the last applied one
}

// BusConfig selects the status event bus; an empty redis_addr uses an in-process bus
type BusConfig struct {
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// FrameConfig configures the renderer host
type FrameConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Collection == "" {
		c.API.Collection = "projects"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.Entity == "" {
		c.Entity = "project"
	}
	if c.Preview.Debounce <= 0 {
		c.Preview.Debounce = 500 * time.Millisecond
	}
	if c.Frame.Addr == "" {
		c.Frame.Addr = "127.0.0.1:7777"
	}
	if c.MediaBaseURL == "" {
		c.MediaBaseURL = "http://" + c.Frame.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if len(c.Themes) == 0 {
		c.Themes = []document.Theme{{Value: "generic", Label: "Generic"}}
	}
}

// Validate checks fields that have no usable default.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if c.Bus.RedisDB < 0 {
		return fmt.Errorf("bus.redis_db must be >= 0")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	for i, t := range c.Themes {
		if t.Value == "" {
			return fmt.Errorf("themes[%d].value is required", i)
		}
	}
	return nil
}

// SlogLevel maps log.level onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
